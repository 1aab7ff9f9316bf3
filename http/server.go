// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"irisclassifier/config"
	"irisclassifier/ml"
	"irisclassifier/monitoring"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	log    *zap.SugaredLogger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfigFrom(config.New().HTTP)
}

// ServerConfigFrom 从配置文件构造服务器配置
func ServerConfigFrom(cfg config.HTTPConfig) ServerConfig {
	return ServerConfig{
		Port:           cfg.Port,
		Timeout:        cfg.Timeout,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}
}

// NewHandler 构造带中间件的路由
func NewHandler(config ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	mux := http.NewServeMux()
	RegisterHandlers(mux, deps)

	if deps.Handle != nil && deps.Handle.Status() == ml.ModelReady {
		monitoring.ModelReadyGauge.Set(1)
	} else {
		monitoring.ModelReadyGauge.Set(0)
	}

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(deps.Logger),            // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(deps.Logger),              // 2. 日志中间件
		MetricsMiddleware,                          // 3. 指标中间件
		SecurityHeadersMiddleware,                  // 4. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),      // 5. CORS中间件
		TimeoutMiddleware(config.Timeout),          // 6. 超时中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 7. 请求大小限制
	)

	return chain(mux)
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	writeTimeout := config.Timeout
	if writeTimeout > 0 {
		// leave room for the timeout handler to write its response
		writeTimeout += time.Second
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Timeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		log:    deps.Logger,
	}
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve 在给定监听器上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.log.Infow("starting HTTP server", "addr", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown 在ctx截止前优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
