package service

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server HTTP 服务；addr 端口为 0 时由系统分配，启动后通过 Addr 获取
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger

	mu    sync.Mutex
	bound net.Addr
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start 监听并阻塞处理请求，Stop 后返回 http.ErrServerClosed
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("Starting wisefido-allocator HTTP server", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// Addr 实际监听地址；未启动时返回空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound == nil {
		return ""
	}
	return s.bound.String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping wisefido-allocator HTTP server")
	return s.httpServer.Shutdown(ctx)
}
