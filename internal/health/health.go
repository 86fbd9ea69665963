// Package health exposes the process's liveness and resource state over
// HTTP: a chi router serving GET /health, with CPU/memory details folded
// in from gopsutil, generalized from a chi-based dashboard server's
// system-status endpoint to this core's chain/bus/circuit-breaker status
// surface.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// ChainStatus is one ingestion chain's reported health.
type ChainStatus struct {
	ChainID       string `json:"chainId"`
	Connected     bool   `json:"connected"`
	LastMessageMs int64  `json:"lastMessageMs"`
	Stale         bool   `json:"stale"`
}

// CircuitStatus reports one chain's execution circuit-breaker state.
type CircuitStatus struct {
	Chain string `json:"chain"`
	State string `json:"state"`
}

// StatusSource is implemented by the components the /health endpoint
// reports on; kept as a narrow interface so health has no import-cycle
// back into ingestion/execution.
type StatusSource interface {
	ChainStatuses() []ChainStatus
	CircuitStatuses() []CircuitStatus
	DrawdownState() types.DrawdownState
}

// Response is the JSON body served at GET /health.
type Response struct {
	Status      string          `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeMs    int64           `json:"uptimeMs"`
	Chains      []ChainStatus   `json:"chains"`
	Circuits    []CircuitStatus `json:"circuits"`
	Drawdown    string          `json:"drawdownState"`
	CPUPercent  float64         `json:"cpuPercent"`
	MemUsedMB   float64         `json:"memUsedMb"`
	MemTotalMB  float64         `json:"memTotalMb"`
}

// Server wraps a chi.Mux serving the health surface.
type Server struct {
	router      *chi.Mux
	source      StatusSource
	startupTime time.Time
	log         zerolog.Logger
}

// NewServer builds the health HTTP server, wiring CORS and request
// logging/recovery middleware.
func NewServer(source StatusSource, log zerolog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		source:      source,
		startupTime: time.Now(),
		log:         log.With().Str("component", "health").Logger(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	s.router.Get("/health", s.handleHealth)
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		UptimeMs: time.Since(s.startupTime).Milliseconds(),
		Drawdown: s.source.DrawdownState().String(),
	}
	resp.Chains = s.source.ChainStatuses()
	resp.Circuits = s.source.CircuitStatuses()

	if cpuPercent, err := cpu.PercentWithContext(r.Context(), 100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	} else if err != nil {
		s.log.Debug().Err(err).Msg("cpu sample unavailable")
	}
	if memStat, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.MemUsedMB = float64(memStat.Used) / (1024 * 1024)
		resp.MemTotalMB = float64(memStat.Total) / (1024 * 1024)
	} else {
		s.log.Debug().Err(err).Msg("mem sample unavailable")
	}

	resp.Status = s.overallStatus(resp)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("failed to encode health response")
	}
}

// overallStatus derives a coarse status: unhealthy if every chain is
// stale/disconnected or drawdown is halted, degraded if any chain is
// stale or any circuit is open, healthy otherwise.
func (s *Server) overallStatus(resp Response) string {
	if resp.Drawdown == types.DrawdownHalt.String() {
		return "unhealthy"
	}

	connectedCount := 0
	degraded := false
	for _, c := range resp.Chains {
		if c.Connected && !c.Stale {
			connectedCount++
		} else {
			degraded = true
		}
	}
	if len(resp.Chains) > 0 && connectedCount == 0 {
		return "unhealthy"
	}
	for _, c := range resp.Circuits {
		if c.State != types.CircuitClosed.String() {
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}

// ListenAndServe starts the health HTTP server and blocks until ctx is
// cancelled, then shuts down gracefully within the given timeout.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, log zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("health server shutdown error")
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
