package infrastructure

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"spendguard/internal/config"
	"spendguard/internal/notify"
	"spendguard/internal/repository"
	"spendguard/internal/service"
	transportHTTP "spendguard/internal/transport/http"
	transportNATS "spendguard/internal/transport/nats"
	"spendguard/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	// ── Alert channels ─────────────────────────────────────────────────────────
	var channels []notify.Channel
	if cfg.SlackConfigured() {
		channels = append(channels, notify.NewSlackChannel(cfg.SlackWebhookURL))
	}
	if cfg.EmailConfigured() {
		channels = append(channels, notify.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.AlertEmailTo))
	}
	if len(channels) == 0 {
		slog.Warn("no alert channels configured; limit alerts will be recorded but not delivered")
	}
	notifier := notify.New(channels...)

	// ── Storage and bus wiring ─────────────────────────────────────────────────
	var bus repository.MessageBus
	var servers []Server

	ledger := repository.NewLedgerRepo(db)
	aggregates := repository.NewAggregateRepo(db, rdb)
	alerts := repository.NewAlertRepo(db)

	var nc *nats.Conn
	if cfg.BusEnabled() {
		nc, err = connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)
	}

	var svc service.SpendingService = service.NewEngine(ledger, aggregates, alerts, notifier, bus, cfg.HourlyLimitMicros)

	if nc != nil {
		// Bus-delivered ingest plus the aggregate reconciler.
		servers = append(servers, transportNATS.NewHandler(svc, nc))
		servers = append(servers, worker.NewAggregateReconciler(svc, nc))
	}

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, cfg.WebhookSecret, cfg.InsecureWebhook))
	} else {
		slog.Info("HTTP API not started", "reason", apiErr)
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
