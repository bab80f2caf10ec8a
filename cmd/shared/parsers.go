package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"devremote/troubleshoot/pkg/config"
)

var transportRe = regexp.MustCompile(`^(tcp|ws|wss|udp)://(\[[0-9a-fA-F:.]+\]|[^:/\[\]]*):(\d+)(/\S*)?$`)

// Transport is a parsed transport argument.
type Transport struct {
	Protocol config.Protocol
	Host     string
	Port     int
	Path     string // websocket request path
}

// ParseTransport parses a transport string in the format
// "protocol://host:port[/path]" where protocol is one of tcp, ws, wss, or
// udp. IPv6 hosts are written in brackets. The host can be empty or "*" to
// bind to all interfaces. A path is only accepted for ws and wss.
func ParseTransport(s string) (Transport, error) {
	matches := transportRe.FindStringSubmatch(s)
	if len(matches) != 5 {
		return Transport{}, parsingError(s)
	}

	var t Transport
	switch matches[1] {
	case "tcp":
		t.Protocol = config.ProtoTCP
	case "ws":
		t.Protocol = config.ProtoWS
	case "wss":
		t.Protocol = config.ProtoWSS
	case "udp":
		t.Protocol = config.ProtoUDP
	}

	t.Host = strings.TrimSuffix(strings.TrimPrefix(matches[2], "["), "]")
	if t.Host == "*" { // also counts as all interfaces
		t.Host = ""
	}

	port, err := strconv.Atoi(matches[3])
	if err != nil || port < 1 || port > 65535 {
		return Transport{}, parsingError(s)
	}
	t.Port = port

	t.Path = matches[4]
	if t.Path != "" && t.Protocol != config.ProtoWS && t.Protocol != config.ProtoWSS {
		return Transport{}, fmt.Errorf("parsing %s: a path is only supported for ws and wss", s)
	}

	return t, nil
}

func parsingError(s string) error {
	return fmt.Errorf("parsing %s: format should be 'protocol://host:port[/path]', where protocol = tcp|ws|wss|udp", s)
}
