// Package format renders addresses and sizes for logs and dial strings.
package format

import (
	"net"
	"strconv"
)

// Addr joins host and port, bracketing IPv6 hosts.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
