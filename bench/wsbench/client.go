package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// frame 与服务端的帧格式一致：{"event": "...", "data": ..., "ts": ...}
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// probe 随 ping 和聊天消息发出，回来时据此计算延迟
type probe struct {
	ChatID  string `json:"chat_id,omitempty"`
	From    string `json:"from,omitempty"`
	SentAt  int64  `json:"sentAt"`
	Payload string `json:"payload,omitempty"`
}

// Client 一个压测用户的连接
type Client struct {
	id     int
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex // 串行化写
}

func issueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func dial(ctx context.Context, id int, cfg Config, stats *Stats) (*Client, error) {
	atomic.AddInt64(&stats.TotalAttempts, 1)

	userID := fmt.Sprintf("%s%d", cfg.UserPrefix, id)
	token, err := issueToken(cfg.Secret, userID, cfg.Duration+time.Hour)
	if err != nil {
		stats.recordError("sign_failed")
		atomic.AddInt64(&stats.FailedConns, 1)
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	header := http.Header{}
	header.Set("Cookie", cfg.CookieName+"="+token)

	start := time.Now()
	ws, resp, err := dialer.DialContext(ctx, cfg.Target, header)
	if err != nil {
		atomic.AddInt64(&stats.FailedConns, 1)
		if resp != nil {
			stats.recordError(fmt.Sprintf("handshake_%d", resp.StatusCode))
		} else {
			stats.recordError(err.Error())
		}
		return nil, err
	}

	stats.recordConnLatency(time.Since(start))
	atomic.AddInt64(&stats.SuccessConns, 1)
	atomic.AddInt64(&stats.CurrentConns, 1)
	return &Client{id: id, userID: userID, conn: ws}, nil
}

func (c *Client) send(name string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(frame{Event: name, Data: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func chatRoom(cfg Config, id int) string {
	return fmt.Sprintf("bench-room-%d", id/cfg.RoomSize)
}

// subscribe 按模式订阅：presence 订阅下一个用户的状态，chat 加入分组房间
func (c *Client) subscribe(cfg Config) error {
	switch cfg.Mode {
	case "presence":
		next := fmt.Sprintf("%s%d", cfg.UserPrefix, (c.id+1)%cfg.Conns)
		return c.send("join:status", next)
	case "chat":
		return c.send("join:chat", chatRoom(cfg, c.id))
	}
	return nil
}

func (c *Client) run(ctx context.Context, cfg Config, stats *Stats) {
	defer func() {
		c.conn.Close()
		atomic.AddInt64(&stats.CurrentConns, -1)
	}()

	// 服务端 ping 自动回 pong，写和业务帧共用一把锁
	c.conn.SetPingHandler(func(appData string) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop(stats)
	}()

	if err := c.subscribe(cfg); err != nil {
		stats.recordError("subscribe_failed")
		return
	}

	pingTicker := time.NewTicker(cfg.PingInterval)
	defer pingTicker.Stop()

	var eventC <-chan time.Time
	if cfg.Mode != "connect-only" && cfg.MsgRate > 0 {
		t := time.NewTicker(time.Minute / time.Duration(cfg.MsgRate))
		defer t.Stop()
		eventC = t.C
	}

	payload := strings.Repeat("x", cfg.PayloadSize)
	online := true
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.mu.Unlock()
			return
		case <-readDone:
			return
		case <-pingTicker.C:
			if err := c.send("ping", probe{SentAt: time.Now().UnixNano()}); err != nil {
				stats.recordError("ping_failed")
				continue
			}
			atomic.AddInt64(&stats.PingsSent, 1)
		case <-eventC:
			var err error
			if cfg.Mode == "presence" {
				online = !online
				err = c.send("update:status", online)
			} else {
				err = c.send("send:chat:message", probe{
					ChatID:  chatRoom(cfg, c.id),
					From:    c.userID,
					SentAt:  time.Now().UnixNano(),
					Payload: payload,
				})
			}
			if err != nil {
				atomic.AddInt64(&stats.MessagesFailed, 1)
				continue
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func (c *Client) readLoop(stats *Stats) {
	for {
		// 服务端 pongWait 是 60s
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				atomic.AddInt64(&stats.Disconnects, 1)
			}
			return
		}

		var f frame
		if json.Unmarshal(msg, &f) != nil {
			stats.recordError("bad_frame")
			continue
		}

		switch {
		case f.Event == "pong":
			atomic.AddInt64(&stats.PongsReceived, 1)
			var p probe
			if json.Unmarshal(f.Data, &p) == nil && p.SentAt > 0 {
				stats.recordPingLatency(time.Since(time.Unix(0, p.SentAt)))
			}
		case strings.HasPrefix(f.Event, "chat:message:"):
			atomic.AddInt64(&stats.MessagesReceived, 1)
			var p probe
			if json.Unmarshal(f.Data, &p) == nil && p.SentAt > 0 {
				stats.recordMsgLatency(time.Since(time.Unix(0, p.SentAt)))
			}
		case strings.HasPrefix(f.Event, "online:status:"):
			atomic.AddInt64(&stats.StatusReceived, 1)
		case f.Event == "error":
			stats.recordError("server_error: " + string(f.Data))
		}
	}
}
