package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	eventBuffer  = 16
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is one live connection belonging to userID. Events for that user
// are queued on events by the hub and written out in order.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	userID string
	events chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		events: make(chan []byte, eventBuffer),
	}
}

// Run streams the user's events until the peer goes away, ctx ends, or the
// hub drops the client. The stream is one-way: CloseRead discards anything
// the browser sends and cancels the returned context when the peer closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx = c.conn.CloseRead(ctx)
	if err := c.stream(ctx); err != nil {
		c.conn.Close(ws.StatusInternalError, "write failed")
		return
	}
	c.conn.Close(ws.StatusNormalClosure, "")
}

func (c *Client) stream(ctx context.Context) error {
	keepalive := time.NewTicker(pingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-c.events:
			if !ok {
				return nil
			}
			if err := c.write(ctx, data); err != nil {
				return err
			}
		case <-keepalive.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, data)
}
