package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gamenight/livescore/go/internal/locks"
	"github.com/gamenight/livescore/go/internal/presence"
	"github.com/gamenight/livescore/go/internal/scores"
	"github.com/gamenight/livescore/go/internal/timers"
)

// Config holds gateway configuration.
type Config struct {
	ConnectionConfig ConnectionConfig

	// SweepInterval controls the expired-lock sweep. Zero disables it;
	// Acquire treats expired locks as steal-able either way.
	SweepInterval time.Duration
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		SweepInterval:    locks.DefaultLease,
	}
}

// Service binds the connection manager, dispatch table and lock sweep into
// the room broadcast protocol surface.
type Service struct {
	config            Config
	connectionManager *ConnectionManager
	handlers          *Handlers
	wsHandler         *WebSocketHandler
	locks             *locks.Manager
	clock             clockwork.Clock
}

func NewService(config Config, reg *presence.Registry, lockMgr *locks.Manager, aggregator *timers.Aggregator, scoreApp *scores.App, auth AuthFunc, clock clockwork.Clock) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	handlers := NewHandlers(reg, lockMgr, aggregator, scoreApp, cm)
	cm.SetDispatcher(handlers)

	return &Service{
		config:            config,
		connectionManager: cm,
		handlers:          handlers,
		wsHandler:         NewWebSocketHandler(cm, reg, auth),
		locks:             lockMgr,
		clock:             clock,
	}
}

// Start runs the fan-out loop and the periodic lock sweep until the context
// is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting scoring gateway")

	go s.connectionManager.Start(ctx)

	if s.config.SweepInterval > 0 {
		go s.runLockSweep(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scoring gateway shutting down")
}

func (s *Service) runLockSweep(ctx context.Context) {
	ticker := s.clock.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if count := s.locks.SweepExpired(); count > 0 {
				log.Info().Int("count", count).Msg("expired edit locks swept")
			}
		}
	}
}

// RegisterRoutes registers the gateway's HTTP surface with a mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
}
