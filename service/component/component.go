// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package component connects to an XMPP server as an external component
// (XEP-0114) and answers HTTP File Upload slot requests (XEP-0363) and
// service discovery queries (XEP-0030).
package component

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	accept "mellium.im/xmpp/component"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stream"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/service/slot"
)

var (
	// ErrHandshake is returned when the server rejects the component secret.
	ErrHandshake = errors.New("component: handshake rejected")

	// ErrStreamClosed is returned when the server ends the stream.
	ErrStreamClosed = errors.New("component: stream closed by server")
)

const (
	maxBackoff = time.Minute
	minBackoff = time.Second
)

// SlotRequester authorizes upload slots. *slot.Service satisfies it.
type SlotRequester interface {
	RequestSlot(ctx context.Context, req slot.Request) (slot.Slot, error)
	MaxFileSize() int64
}

// Options configures a Component.
type Options struct {
	JID    string // component domain, e.g. upload.example.com
	Secret string // shared secret configured on the server
	Addr   string // server component port, e.g. localhost:5347
}

// Component is a single XMPP component session.
type Component struct {
	opts  Options
	slots SlotRequester
	dial  func(ctx context.Context, addr string) (net.Conn, error)
}

// New returns a Component that forwards slot requests to slots.
func New(opts Options, slots SlotRequester) *Component {
	return &Component{
		opts:  opts,
		slots: slots,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// Run connects to the server and serves the stream, reconnecting with
// exponential backoff when the connection drops. It returns nil once ctx
// is cancelled and ErrHandshake if the server refuses the secret.
func (c *Component) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrHandshake) {
			return err
		}
		fwlog.Warnf("component: connection to %s lost: %v; retrying in %s", c.opts.Addr, err, backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Component) session(ctx context.Context) error {
	conn, err := c.dial(ctx, c.opts.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return c.Serve(ctx, conn)
}

// Serve performs the component handshake over rw and dispatches stanzas
// until the stream ends, rw fails or ctx is cancelled.
func (c *Component) Serve(ctx context.Context, rw io.ReadWriter) error {
	addr, err := jid.Parse(c.opts.JID)
	if err != nil {
		return fmt.Errorf("component: invalid jid %q: %w", c.opts.JID, err)
	}

	s, err := accept.NewSession(ctx, addr, []byte(c.opts.Secret), rw)
	if err != nil {
		var se stream.Error
		if errors.As(err, &se) {
			return fmt.Errorf("%w: %s", ErrHandshake, se.Err)
		}
		return err
	}
	fwlog.Infof("component: connected as %s", addr)

	stop := context.AfterFunc(ctx, func() {
		conn := s.Conn()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.Close()
		_ = conn.Close()
	})
	defer stop()

	err = s.Serve(c.newHandler(ctx, addr))
	switch {
	case ctx.Err() != nil:
		return nil
	case err == nil:
		return ErrStreamClosed
	default:
		return err
	}
}

// bareJID strips the resource and lowercases what remains.
func bareJID(j jid.JID) string {
	return strings.ToLower(j.Bare().String())
}
