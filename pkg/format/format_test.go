package format

import "testing"

func TestAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		port int
		want string
	}{
		{"192.168.1.1", 8080, "192.168.1.1:8080"},
		{"example.com", 443, "example.com:443"},
		{"::1", 8080, "[::1]:8080"},
		{"2001:db8::1", 80, "[2001:db8::1]:80"},
		{"", 8080, ":8080"},
	}

	for _, tc := range tests {
		if got := Addr(tc.host, tc.port); got != tc.want {
			t.Errorf("Addr(%q, %d) = %q, want %q", tc.host, tc.port, got, tc.want)
		}
	}
}

func TestSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tc := range tests {
		if got := Size(tc.n); got != tc.want {
			t.Errorf("Size(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
