package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/fsm"
	"github.com/sobremidia/player/internal/repository"
	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/internal/watchdog"
)

// Server exposes the local observability surface: a liveness probe,
// Prometheus metrics and a human-readable status document. It binds to
// localhost only; the catalog never calls in.
type Server struct {
	machine  *fsm.Machine
	repo     *repository.Repository
	files    *store.FileStore
	deviceID string
	port     int
	registry *prometheus.Registry
	started  time.Time
	logger   *zap.Logger
}

// NewServer wires the status endpoints against the running components.
func NewServer(machine *fsm.Machine, repo *repository.Repository, files *store.FileStore, deviceID string, port int, logger *zap.Logger) *Server {
	s := &Server{
		machine:  machine,
		repo:     repo,
		files:    files,
		deviceID: deviceID,
		port:     port,
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		logger:   logger.Named("status"),
	}
	s.registerMetrics()
	return s
}

func (s *Server) registerMetrics() {
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "playerd_playlist_items",
		Help: "Items in the active playlist.",
	}, func() float64 {
		if playlist := s.repo.CurrentPlaylist(); playlist != nil {
			return float64(len(playlist.Items))
		}
		return 0
	}))
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "playerd_media_bytes",
		Help: "Bytes of cached media payloads on disk.",
	}, func() float64 {
		return float64(s.files.TotalSize())
	}))
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "playerd_storage_free_bytes",
		Help: "Free bytes on the data volume.",
	}, func() float64 {
		return float64(s.files.FreeBytes())
	}))
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "playerd_cpu_temperature_celsius",
		Help: "SoC temperature as read from the thermal zones.",
	}, watchdog.ReadCPUTemperature))
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", s.handleHealthz)
	router.Get("/status", s.handleStatus)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	s.logger.Info("status server listening", zap.String("addr", server.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	DeviceID      string          `json:"device_id"`
	State         string          `json:"state"`
	SyncProgress  string          `json:"sync_progress,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Playlist      *playlistStatus `json:"playlist,omitempty"`
	MediaBytes    int64           `json:"media_bytes"`
}

type playlistStatus struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Items   int    `json:"items"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		DeviceID:      s.deviceID,
		State:         s.machine.Current().String(),
		SyncProgress:  s.repo.SyncProgress(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		MediaBytes:    s.files.TotalSize(),
	}
	if playlist := s.repo.CurrentPlaylist(); playlist != nil {
		resp.Playlist = &playlistStatus{
			ID:      playlist.ID,
			Version: playlist.Version,
			Items:   len(playlist.Items),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("status encode failed", zap.Error(err))
	}
}
