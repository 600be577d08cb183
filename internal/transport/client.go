// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	applog "vizbridge/internal/log"
	"vizbridge/internal/protocol"
)

// Client is the render-side Session: a WebSocket connection dialed to the
// capture agent's session endpoint.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	handlers   handlerSet
	disconnect notifySet

	done      chan struct{}
	closeOnce sync.Once
}

var _ Session = (*Client)(nil)
var _ PeerNotifier = (*Client)(nil)

// Dial connects to a capture agent. url is the full WebSocket URL, e.g.
// "ws://127.0.0.1:8765/session".
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	c := &Client{
		conn: conn,
		done: make(chan struct{}),
	}
	go c.readLoop()

	applog.Infof("Transport: Connected to %s", url)
	return c, nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				applog.Warnf("Transport: Connection lost: %v", err)
				c.disconnect.fire()
			}
			return
		}
		m, err := protocol.Decode(data)
		if err != nil {
			applog.Warnf("Transport: Ignoring undecodable message: %v", err)
			continue
		}
		c.handlers.dispatch(m)
	}
}

// Send writes a message to the agent. Write failures are logged and
// swallowed; the reconnect loop is the recovery path.
func (c *Client) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		applog.Warnf("Transport: Send %q failed: %v", m.Kind, err)
	}
	return nil
}

func (c *Client) OnMessage(fn func(protocol.Message)) {
	c.handlers.add(fn)
}

// OnDisconnect registers an observer fired when the connection drops.
func (c *Client) OnDisconnect(fn func()) {
	c.disconnect.add(fn)
}

// Close tears down the connection. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.handlers.clear()
		c.conn.Close()
	})
	return nil
}
