package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
)

const (
	// 写超时
	writeWait = 10 * time.Second
	// Pong等待时间
	pongWait = 60 * time.Second
	// Ping周期（必须小于pongWait）
	pingPeriod = 30 * time.Second
	// 最大消息大小
	defaultMaxMessageSize = 64 * 1024
	// 发送缓冲
	defaultSendBuffer = 256
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Connection 一条 WebSocket 连接，写操作全部经由 WritePump
type Connection struct {
	id             entity.ConnectionID
	conn           *websocket.Conn
	send           chan []byte
	maxMessageSize int64
	connectedAt    time.Time

	// closed 与 close(send) 在同一把锁下，Send 不会写入已关闭的 channel
	mu     sync.RWMutex
	closed bool
}

func newConnection(id entity.ConnectionID, conn *websocket.Conn, sendBuffer int, maxMessageSize int64) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	return &Connection{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		maxMessageSize: maxMessageSize,
		connectedAt:    time.Now(),
	}
}

func (c *Connection) ID() entity.ConnectionID { return c.id }

// Send 非阻塞，慢客户端的帧直接丢弃
func (c *Connection) Send(message []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}

	select {
	case c.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close 关闭发送队列，WritePump 发出关闭帧后断开底层连接
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ReadPump 读取消息，同一连接的消息按到达顺序依次交给 onMessage
func (c *Connection) ReadPump(onMessage func([]byte)) {
	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				zap.L().Warn("WebSocket error", zap.String("connID", c.id.String()), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		onMessage(message)
	}
}

// WritePump 写入消息
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.L().Warn("Write error", zap.String("connID", c.id.String()), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
