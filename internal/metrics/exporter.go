package metrics

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"go-antinuke-guard/internal/logging"
)

// HostStats is the host section of /healthz.
type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	ProcessRSS    uint64  `json:"process_rss_bytes"`
	Threads       int32   `json:"threads,omitempty"`
}

type healthBody struct {
	Status   string    `json:"status"`
	Pipeline Snapshot  `json:"pipeline"`
	Host     HostStats `json:"host"`
}

// Server exposes /metrics and /healthz over fasthttp. It implements
// suture.Service.
type Server struct {
	addr   string
	health *PipelineHealth
	srv    *fasthttp.Server
}

func NewServer(addr string, health *PipelineHealth) *Server {
	s := &Server{addr: addr, health: health}
	s.srv = &fasthttp.Server{
		Handler:      s.route(),
		Name:         "antinuke",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) route() fasthttp.RequestHandler {
	promHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			promHandler(ctx)
		case "/healthz":
			s.handleHealth(ctx)
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	statsCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	body := healthBody{
		Status:   "ok",
		Pipeline: s.health.Snapshot(),
		Host:     collectHostStats(statsCtx),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

func collectHostStats(ctx context.Context) HostStats {
	var hs HostStats
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		hs.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hs.MemoryPercent = vm.UsedPercent
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			hs.ProcessRSS = info.RSS
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			hs.Threads = n
		}
	}
	return hs
}

// Serve runs the listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("metrics server listening")
		errCh <- s.srv.ListenAndServe(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logging.Warn().Err(err).Msg("metrics server shutdown")
		}
		return ctx.Err()
	}
}

func (s *Server) String() string { return "metrics-server" }
