package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/utils/log"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrQueueFull  = errors.New("outbound queue full")
)

const defaultPushTimeout = 10 * time.Second

// wsConn is one websocket client. Frames for it go through a bounded queue
// drained by writePump. Push waits for room in the queue until its context
// ends or the connection closes.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	send         chan *model.Frame
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(id string, conn *websocket.Conn, queueSize int, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           id,
		conn:         conn,
		send:         make(chan *model.Frame, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Push(ctx context.Context, frame *model.Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrQueueFull, ctx.Err())
	}
}

// Close stops further pushes. writePump flushes what is queued, then closes
// the socket, which ends readPump.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsConn) pushEvent(event string, data any) {
	frame, err := model.NewFrame(event, data)
	if err != nil {
		log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return
	}

	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.Push(ctx, frame); err != nil {
		log.Debug("drop outbound frame", zap.String("conn", c.id), zap.String("event", event), zap.Error(err))
	}
}

func (c *wsConn) pushError(description string) {
	c.pushEvent(model.EventError, &model.ErrorEvent{Description: description})
}

func (c *wsConn) writePump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				log.Debug("write to web socket failed", zap.String("conn", c.id), zap.Error(err))
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (c *wsConn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(frame *model.Frame) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(frame)
}
