package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// wsConn wraps a single websocket connection. Reads happen on the caller's
// goroutine; the ping loop is the only writer.
type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// dialWS establishes a websocket connection and starts its keep-alive loop.
func dialWS(ctx context.Context, url string) (*wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: connect %s: %w", url, err)
	}

	w := &wsConn{
		conn: conn,
		done: make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.pingLoop()
	return w, nil
}

// Read blocks for the next text/binary message.
func (w *wsConn) Read() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("feed: read: %w", err)
	}
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	return data, nil
}

// Close tears the connection down; safe to call from any goroutine and
// unblocks a pending Read.
func (w *wsConn) Close() {
	select {
	case <-w.done:
		return
	default:
		close(w.done)
	}
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	_ = w.conn.Close()
}

func (w *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.conn.WriteControl(
				websocket.PingMessage, nil, time.Now().Add(writeWait),
			); err != nil {
				return
			}
		}
	}
}
