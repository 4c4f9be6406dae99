package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/relayctl/internal/config"
	"github.com/taoyao-code/relayctl/internal/protocol/relay"
)

// Handler 处理一次请求，ok=false 表示不应答直接关闭
type Handler func(req []byte) (resp []byte, ok bool)

// Server 短连接 TCP 服务：每个连接读一帧、至多回一帧后关闭
type Server struct {
	cfg     cfgpkg.SimulatorConfig
	ln      net.Listener
	wg      sync.WaitGroup
	stopC   chan struct{}
	handler Handler
	logger  *zap.Logger
	admit   *admission
	// 可选指标回调
	onAccept    func()
	onRecvBytes func(n int)
}

// New 创建服务
func New(cfg cfgpkg.SimulatorConfig, h Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		stopC:   make(chan struct{}),
		handler: h,
		logger:  logger,
		admit:   newAdmission(cfg.MaxConnections, cfg.RateLimit, cfg.RateBurst),
	}
}

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func(), onRecvBytes func(int)) {
	s.onAccept, s.onRecvBytes = onAccept, onRecvBytes
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("relay simulator listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if s.onAccept != nil {
			s.onAccept()
		}
		if err := s.admit.acquire(); err != nil {
			s.logger.Warn("connection rejected",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Error(err),
			)
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.admit.release()
			s.serve(c)
		}(conn)
	}
}

func (s *Server) serve(c net.Conn) {
	defer c.Close()
	if s.cfg.ReadTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	buf := make([]byte, relay.MaxResponseLen)
	n, err := c.Read(buf)
	if n == 0 {
		if err != nil {
			s.logger.Debug("read failed", zap.String("remote_addr", c.RemoteAddr().String()), zap.Error(err))
		}
		return
	}
	if s.onRecvBytes != nil {
		s.onRecvBytes(n)
	}
	if s.handler == nil {
		return
	}

	resp, ok := s.handler(buf[:n])
	if !ok || len(resp) == 0 {
		return
	}
	if s.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := c.Write(resp); err != nil {
		s.logger.Warn("write failed", zap.String("remote_addr", c.RemoteAddr().String()), zap.Error(err))
	}
}

// ActiveConnections 当前处理中的连接数
func (s *Server) ActiveConnections() int { return int(s.admit.active.Load()) }

// MaxConnections 并发上限，0 表示不限
func (s *Server) MaxConnections() int { return s.admit.maxConnections() }

// Stats 连接统计
func (s *Server) Stats() Stats {
	return Stats{
		ActiveConnections: s.ActiveConnections(),
		MaxConnections:    s.MaxConnections(),
		RejectedTotal:     s.admit.rejected.Load(),
	}
}

// Stats 服务统计信息
type Stats struct {
	ActiveConnections int   `json:"active_connections"`
	MaxConnections    int   `json:"max_connections"`
	RejectedTotal     int64 `json:"rejected_total"`
}

// Shutdown 关闭监听并等待在途连接退出
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stopC:
	default:
		close(s.stopC)
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
