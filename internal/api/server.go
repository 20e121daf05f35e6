package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/client"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/kiosk"
	"github.com/boothbuddy/boothbuddy/internal/preview"
	"github.com/boothbuddy/boothbuddy/internal/session"
	"github.com/boothbuddy/boothbuddy/internal/storage"
)

// KioskController is the booth state the kiosk routes drive.
type KioskController interface {
	StartCapture() error
	ApplyFilter(ctx context.Context, filterType string, intensity float64) error
	ClearFilter()
	Compose(ctx context.Context, frameWidth int) error
	Save(ctx context.Context) error
	RefreshGallery(ctx context.Context) ([]client.StripRecord, error)
	Reset() error
	Snapshot() kiosk.Snapshot
	Session() *session.Store
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host           string
	Port           int
	Gallery        gallery.GalleryService
	Repository     gallery.Repository
	Preview        preview.PreviewService
	LocalStore     *storage.LocalBackend
	Kiosk          KioskController
	Events         *Broadcaster
	AllowedOrigins []string
	MaxBodyBytes   int64
	Shots          int
	DecodeTimeout  time.Duration
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
