// Package ws provides the websocket transport. Every frame is carried as one
// binary websocket message and the device token is presented as a bearer
// token in the Authorization header of the upgrade request.
package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/transport"

	"github.com/coder/websocket"
)

// Subprotocol is negotiated on every connection.
const Subprotocol = "troubleshoot"

// Dialer implements transport.Dialer for ws and wss.
type Dialer struct {
	url      string
	insecure bool
}

// NewDialer creates a dialer for addr (host:port). With insecure set, wss
// server certificates are not verified.
func NewDialer(addr string, proto config.Protocol, insecure bool) *Dialer {
	return &Dialer{
		url:      fmt.Sprintf("%s://%s", proto.String(), addr),
		insecure: insecure,
	}
}

// Dial opens the websocket and starts delivering frames to cb.
func (d *Dialer) Dial(ctx context.Context, req transport.DialRequest, cb transport.Callbacks) (transport.Conn, error) {
	opts := &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + req.Token},
		},
	}
	if d.insecure {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	url := d.url + req.Path
	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket.Dial(%s): %w", url, err)
	}
	c.SetReadLimit(transport.MaxFrameSize)

	return transport.NewConn(NewFrameConn(c), cb), nil
}
