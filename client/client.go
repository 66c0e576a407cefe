// Package client sends commands to a server, one request per connection.
package client

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"time"

	"github.com/code19m/errx"

	"mini-cmd/loadbalance"
	"mini-cmd/logger"
	"mini-cmd/message"
	"mini-cmd/registry"
)

const (
	CodeNoTarget    = "NO_TARGET"
	CodeTransport   = "TRANSPORT_ERROR"
	CodeBadResponse = "BAD_RESPONSE"
)

const defaultMaxResponseBytes = 64 << 20

// Client sends requests either to a fixed address or to an instance picked from a registry.
type Client struct {
	addr     string
	registry registry.Registry // find service instances from registry
	balancer loadbalance.Balancer
	service  string

	dialer           net.Dialer
	timeout          time.Duration
	maxResponseBytes int64
	logger           logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAddr sends every request to addr.
func WithAddr(addr string) Option {
	return func(c *Client) { c.addr = addr }
}

// WithRegistry discovers instances of service in reg and picks one per request with bal.
// It takes precedence over WithAddr.
func WithRegistry(reg registry.Registry, service string, bal loadbalance.Balancer) Option {
	return func(c *Client) {
		c.registry = reg
		c.service = service
		c.balancer = bal
	}
}

// WithTimeout bounds a whole exchange when the context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxResponseBytes caps the size of a reply. Larger replies fail with CodeBadResponse.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.maxResponseBytes = n }
}

// WithLogger sets the client's logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l.Named("client") }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:          30 * time.Second,
		maxResponseBytes: defaultMaxResponseBytes,
		logger:           logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry != nil && c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	return c
}

// Call sends cmd under a fresh request id.
func (c *Client) Call(ctx context.Context, cmd message.Command) (message.Response, error) {
	return c.Do(ctx, message.NewRequest(cmd))
}

// Do sends req and returns the server's response. Command failures are reported in the
// Response; the error is only set when no response could be obtained.
func (c *Client) Do(ctx context.Context, req message.Request) (message.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return message.Response{}, errx.Wrap(err)
	}
	return c.Send(ctx, data)
}

// Send writes a raw request document and decodes the reply.
func (c *Client) Send(ctx context.Context, data []byte) (message.Response, error) {
	addr, err := c.resolve(ctx)
	if err != nil {
		return message.Response{}, err
	}

	reply, err := c.exchange(ctx, addr, data)
	if err != nil {
		return message.Response{}, err
	}

	var resp message.Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return message.Response{}, errx.Wrap(err, errx.WithCode(CodeBadResponse), errx.WithDetails(errx.D{
			"addr":  addr,
			"reply": string(reply),
		}))
	}
	return resp, nil
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.registry == nil {
		if c.addr == "" {
			return "", errx.New("client has neither an address nor a registry", errx.WithCode(CodeNoTarget))
		}
		return c.addr, nil
	}

	instances, err := c.registry.Discover(ctx, c.service)
	if err != nil {
		return "", err
	}
	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return "", err
	}
	c.logger.Debugw("picked instance", "service", c.service, "addr", instance.Addr, "balancer", c.balancer.Name())
	return instance.Addr, nil
}

// exchange writes data, half-closes the connection and reads until the server closes it.
func (c *Client) exchange(ctx context.Context, addr string, data []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errx.Wrap(err, errx.WithCode(CodeTransport))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(data); err != nil {
		return nil, errx.Wrap(err, errx.WithCode(CodeTransport))
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return nil, errx.Wrap(err, errx.WithCode(CodeTransport))
		}
	}

	reply, err := io.ReadAll(io.LimitReader(conn, c.maxResponseBytes+1))
	if err != nil {
		return nil, errx.Wrap(err, errx.WithCode(CodeTransport))
	}
	if int64(len(reply)) > c.maxResponseBytes {
		return nil, errx.New("response exceeds the size limit", errx.WithCode(CodeBadResponse), errx.WithDetails(errx.D{
			"addr":  addr,
			"limit": c.maxResponseBytes,
		}))
	}
	if len(reply) == 0 {
		return nil, errx.New("server closed the connection without a response", errx.WithCode(CodeTransport))
	}
	return reply, nil
}
