// internal/server/server.go
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"

	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/notify"
	"github.com/signalnine/fleetwatch/internal/status"
	"github.com/signalnine/fleetwatch/internal/store"
)

// Server is the central fleet server
type Server struct {
	cfg     *config.ServerConfig
	db      *store.DB
	events  *notify.Queue
	deriver *status.Deriver
	sweeper *status.Sweeper
	checks  *checkCache
	server  *http.Server
	now     func() time.Time
}

// NewServer opens the database and status publisher named by cfg
func NewServer(cfg *config.ServerConfig) (*Server, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var pub notify.Publisher = notify.Nop{}
	if cfg.AMQPURL != "" {
		pub = notify.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	}

	return New(cfg, db, pub), nil
}

// New assembles a server around an open database and publisher.
// The server takes ownership of both. Status changes reach pub through a
// queue drained by Serve, never on the request path.
func New(cfg *config.ServerConfig, db *store.DB, pub notify.Publisher) *Server {
	events := notify.NewQueue(pub, notify.DefaultQueueSize)
	deriver := status.NewDeriver(db, events)
	s := &Server{
		cfg:     cfg,
		db:      db,
		events:  events,
		deriver: deriver,
		sweeper: status.NewSweeper(deriver, status.SweeperConfig{
			SweepInterval:     cfg.SweepInterval,
			OfflineThreshold:  cfg.OfflineThreshold,
			SnapshotRetention: cfg.SnapshotRetention,
		}),
		checks: newCheckCache(db, checkCacheTTL),
		now:    time.Now,
	}

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.newRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l, runs the background sweeper and status
// delivery, and shuts down gracefully when ctx is cancelled
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	defer s.Close()

	if s.cfg.MaxConcurrent > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConcurrent)
	}

	if s.cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			l.Close()
			return fmt.Errorf("load TLS cert: %w", err)
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		l = tls.NewListener(l, s.server.TLSConfig)
	}

	log.Info().Str("addr", l.Addr().String()).Bool("tls", s.cfg.TLSEnabled()).Msg("server starting")

	stopBackground := s.runBackground(ctx)
	defer stopBackground()

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(l); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runBackground starts the sweeper and the status delivery queue. The
// returned func stops both and waits for them.
func (s *Server) runBackground(ctx context.Context) func() {
	bgCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sweeper.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		s.events.Run(bgCtx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// Close releases the publisher and database
func (s *Server) Close() {
	if err := s.events.Close(); err != nil {
		log.Warn().Err(err).Msg("close publisher")
	}
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}
