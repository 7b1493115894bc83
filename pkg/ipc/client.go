package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client speaks the frame protocol over one connection. Calls are
// serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	seq  int
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends method with params and decodes the result into out when out is
// non-nil. A daemon failure is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	resp, err := c.Do(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// Do sends method with params and returns the raw response.
func (c *Client) Do(ctx context.Context, method string, params any) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, method, params); err != nil {
		return nil, err
	}
	return c.receive()
}

// Subscribe opens a stream and calls fn for every pushed frame until fn
// returns an error, ctx is done or the daemon closes the stream.
func (c *Client) Subscribe(ctx context.Context, method string, params any, fn func(Response) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, method, params); err != nil {
		return err
	}
	if _, err := c.receive(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Now()) })
	defer stop()
	for {
		resp, err := c.receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := fn(*resp); err != nil {
			return err
		}
	}
}

// Forward sends an already encoded request and returns the raw response
// frame.
func (c *Client) Forward(req Request) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(c.conn, payload); err != nil {
		return nil, err
	}
	return readFrame(c.conn)
}

func (c *Client) send(ctx context.Context, method string, params any) error {
	c.seq++
	req := Request{ID: fmt.Sprintf("cli-%d-%d", time.Now().UnixNano(), c.seq), Type: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	c.conn.SetDeadline(deadline)
	return writeFrame(c.conn, payload)
}

func (c *Client) receive() (*Response, error) {
	payload, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return &resp, resp.Error
	}
	return &resp, nil
}
