package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/gamenight/livescore/go/internal/gateway"
	"github.com/gamenight/livescore/go/internal/locks"
	"github.com/gamenight/livescore/go/internal/presence"
	"github.com/gamenight/livescore/go/internal/scores"
	"github.com/gamenight/livescore/go/internal/timers"
)

func setupGateway(pool *pgxpool.Pool, config *Config) *gateway.Service {
	// Database layer → repository layer → app layer → gateway.
	clock := clockwork.NewRealClock()

	registry := presence.NewRegistry()
	lockManager := locks.NewManager(config.lockLease(), clock)

	scoreRepo := scores.NewRepository(pool)
	scoreApp := scores.NewApp(scoreRepo)

	timerRepo := timers.NewRepository(pool)
	aggregator := timers.NewAggregator(timerRepo, scoreApp, clock)

	gatewayConfig := gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		SweepInterval:    config.sweepInterval(),
	}

	return gateway.NewService(gatewayConfig, registry, lockManager, aggregator, scoreApp, adminAuth(), clock)
}

// adminAuth gates admin-only operations on a shared token. The embedding
// application is expected to replace this with its real session check; an
// empty ADMIN_TOKEN disables admin access entirely.
func adminAuth() gateway.AuthFunc {
	token := getEnv("ADMIN_TOKEN", "")
	adminID := getEnv("ADMIN_USER_ID", "1")

	return func(r *http.Request) (string, bool) {
		if token == "" {
			return "", false
		}
		presented := r.Header.Get("X-Admin-Token")
		if presented == "" {
			presented = r.URL.Query().Get("admin_token")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			return adminID, true
		}
		return "", false
	}
}
