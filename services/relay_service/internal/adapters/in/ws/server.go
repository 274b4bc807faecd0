package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EthanQC/relay/pkg/zlog"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/in"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// Options 传输层参数
type Options struct {
	AllowedOrigins []string // 为空或包含 "*" 时不校验
	SendBuffer     int
	MaxMessageSize int64
}

// Server WebSocket 接入：握手鉴权、升级、读写协程和优雅关闭
type Server struct {
	resolver in.IdentityResolver
	sessions in.SessionUseCase
	upgrader websocket.Upgrader
	opts     Options

	mu       sync.Mutex
	conns    map[entity.ConnectionID]*Connection
	shutdown bool
	wg       sync.WaitGroup

	// 统计
	accepted int64
	rejected int64
}

func NewServer(resolver in.IdentityResolver, sessions in.SessionUseCase, opts Options) *Server {
	return &Server{
		resolver: resolver,
		sessions: sessions,
		opts:     opts,
		conns:    make(map[entity.ConnectionID]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(opts.AllowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// 非浏览器客户端不带 Origin
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleConnection 处理WebSocket连接。鉴权失败时不升级，直接返回 401。
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	logger := zlog.C(r.Context())

	userID, err := s.resolver.Resolve(r)
	if err != nil {
		atomic.AddInt64(&s.rejected, 1)
		logger.Info("handshake rejected", zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "reason": authReason(err)})
		return
	}

	s.mu.Lock()
	closing := s.shutdown
	s.mu.Unlock()
	if closing {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	conn := newConnection(entity.ConnectionID(uuid.NewString()), wsConn, s.opts.SendBuffer, s.opts.MaxMessageSize)
	connLogger := logger.With(zap.String("connID", conn.ID().String()), zap.String("userID", userID.String()))
	// 连接的生命周期长于这次 HTTP 请求
	ctx := zlog.WithContext(context.Background(), connLogger)

	if !s.track(conn) {
		go conn.WritePump()
		conn.Close()
		return
	}

	go conn.WritePump()

	if _, err := s.sessions.Connect(ctx, conn, userID); err != nil {
		connLogger.Warn("session activation failed", zap.Error(err))
		conn.Close()
		s.untrack(conn)
		return
	}
	atomic.AddInt64(&s.accepted, 1)

	go s.serve(ctx, conn)
}

func (s *Server) serve(ctx context.Context, conn *Connection) {
	defer s.untrack(conn)

	conn.ReadPump(func(raw []byte) {
		s.dispatch(ctx, conn, raw)
	})

	s.sessions.Disconnect(ctx, conn.ID())
	conn.Close()
}

func (s *Server) dispatch(ctx context.Context, conn *Connection, raw []byte) {
	f, err := event.Decode(raw)
	if err != nil {
		logger := zlog.C(ctx)
		logger.Debug("invalid frame", zap.Int("size", len(raw)), zap.Error(err))
		frame, encErr := event.Encode(event.Error, in.ErrorPayload{Code: in.CodeProtocolError, Message: "invalid frame"})
		if encErr != nil {
			logger.Debug("encode error frame failed", zap.Error(encErr))
			return
		}
		if sendErr := conn.Send(frame); sendErr != nil {
			logger.Debug("error frame not delivered", zap.Error(sendErr))
		}
		return
	}

	if err := s.sessions.HandleEvent(ctx, conn.ID(), f.Event, f.Data); err != nil {
		zlog.C(ctx).Debug("event not handled", zap.String("event", f.Event), zap.Error(err))
	}
}

func (s *Server) track(conn *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[conn.ID()] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *Connection) {
	s.mu.Lock()
	_, ok := s.conns[conn.ID()]
	delete(s.conns, conn.ID())
	s.mu.Unlock()
	if ok {
		s.wg.Done()
	}
}

// Shutdown 不再接受新连接，关闭现有连接并等待每个会话完成断开清理
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats 获取服务器统计
func (s *Server) GetStats() map[string]int64 {
	s.mu.Lock()
	live := int64(len(s.conns))
	s.mu.Unlock()

	stats := s.sessions.Stats()
	stats["ws_connections"] = live
	stats["ws_accepted_total"] = atomic.LoadInt64(&s.accepted)
	stats["ws_rejected_total"] = atomic.LoadInt64(&s.rejected)
	return stats
}

func authReason(err error) string {
	switch {
	case errors.Is(err, relayerrors.ErrMissingCredential):
		return relayerrors.ErrMissingCredential.Error()
	case errors.Is(err, relayerrors.ErrInvalidCredential):
		return relayerrors.ErrInvalidCredential.Error()
	default:
		return "unauthorized"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("write handshake response failed", zap.Int("status", status), zap.Error(err))
	}
}
