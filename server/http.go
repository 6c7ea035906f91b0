// Package server 提供 HTTP 服务器和 Saga 管理接口.
//
//	handler, _ := server.NewAdminHandler(store, server.WithMetrics(collector))
//	srv, _ := server.NewHTTP(handler,
//	    server.WithHTTPConfig(cfg.Admin.HTTPConfig),
//	    server.WithHTTPLogger(log),
//	)
//	application.Use(srv)
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/Tsukikage7/questline/logger"
)

var (
	// ErrServerRunning 服务器已启动.
	ErrServerRunning = errors.New("server: server is already running")
	// ErrAddrEmpty 监听地址为空.
	ErrAddrEmpty = errors.New("server: address is empty")
	// ErrNilHandler 处理器为空.
	ErrNilHandler = errors.New("server: handler is nil")
	// ErrNilStore Saga 存储为空.
	ErrNilStore = errors.New("server: saga store is nil")
)

// HTTP 可作为 app 组件运行的 HTTP 服务器.
type HTTP struct {
	opts    *httpOptions
	handler http.Handler
	log     logger.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewHTTP 创建 HTTP 服务器.
func NewHTTP(handler http.Handler, opts ...HTTPOption) (*HTTP, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	o := &httpOptions{name: "http"}
	o.config.ApplyDefaults()
	for _, opt := range opts {
		opt(o)
	}
	if o.config.Addr == "" {
		return nil, ErrAddrEmpty
	}

	log := o.logger
	if log == nil {
		log = logger.NewNop()
	}
	return &HTTP{
		opts:    o,
		handler: handler,
		log:     log.With(logger.String("server", o.name)),
	}, nil
}

// Start 绑定地址后开始服务，阻塞到 ctx 取消或服务异常退出.
//
// ctx 取消时不会关闭服务器，由 Stop 负责优雅关闭.
func (s *HTTP) Start(ctx context.Context) error {
	srv, ln, err := s.listen()
	if err != nil {
		return err
	}
	s.log.Info("[HTTP] 服务器已启动", logger.String("addr", ln.Addr().String()))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

func (s *HTTP) listen() (*http.Server, net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil, nil, ErrServerRunning
	}
	ln, err := net.Listen("tcp", s.opts.config.Addr)
	if err != nil {
		return nil, nil, err
	}

	cfg := s.opts.config
	s.ln = ln
	s.srv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s.srv, ln, nil
}

// Stop 优雅关闭，等待进行中的请求结束或 ctx 到期.
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.log.Info("[HTTP] 服务器关闭中")
	return srv.Shutdown(ctx)
}

// Name 组件名称.
func (s *HTTP) Name() string { return s.opts.name }

// Addr 监听地址，启动后返回实际绑定的地址.
func (s *HTTP) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.opts.config.Addr
	}
	return s.ln.Addr().String()
}

// Handler 返回 HTTP Handler.
func (s *HTTP) Handler() http.Handler { return s.handler }
