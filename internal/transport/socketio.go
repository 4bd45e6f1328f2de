package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketIODialer connects to a socket.io server and treats every payload of
// one named event as a stream message.
type SocketIODialer struct {
	// Event is the event carrying stream messages.
	Event              string
	Namespace          string
	InsecureSkipVerify bool
}

// Dial implements Dialer.
func (d SocketIODialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	if d.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	c := &sioConn{
		msgs:   make(chan []byte, 64),
		closed: make(chan struct{}),
		failed: make(chan error, 1),
	}
	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(d.Namespace, opts)
	c.io = io

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("socket.io connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		connectChan <- eventError(errs, "connect_error")
	})
	io.On(types.EventName("disconnect"), func(reasons ...any) {
		c.fail(fmt.Errorf("socket.io disconnected: %v", reasons))
	})
	event := d.Event
	if event == "" {
		event = "message"
	}
	io.On(types.EventName(event), func(args ...any) {
		if len(args) == 0 {
			return
		}
		data, err := payload(args[0])
		if err != nil {
			logger.Debug("Dropping undecodable socket.io payload.", "error", err)
			return
		}
		select {
		case c.msgs <- data:
		case <-c.closed:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	}
}

type sioConn struct {
	io        *socket.Socket
	msgs      chan []byte
	failed    chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *sioConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.msgs:
		return data, nil
	case err := <-c.failed:
		return nil, err
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *sioConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.io.Disconnect()
	})
	return nil
}

func (c *sioConn) fail(err error) {
	select {
	case c.failed <- err:
	default:
	}
}

// payload normalises a decoded socket.io argument back into JSON bytes.
func payload(arg any) ([]byte, error) {
	switch v := arg.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func eventError(args []any, event string) error {
	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			return err
		}
		return fmt.Errorf("%s: %v", event, args[0])
	}
	return errors.New(event)
}
