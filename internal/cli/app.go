package cli

import (
	"fmt"
	"log/slog"

	"erpadmin/internal/client"
	"erpadmin/internal/domain/access"
	"erpadmin/internal/platform/config"
	"erpadmin/internal/platform/crypto"
	"erpadmin/internal/platform/storage"
	"erpadmin/internal/session"
)

// app is everything one erpctl invocation works with. It is opened in the
// root command's pre-run and closed in its post-run.
type app struct {
	cfg       config.Client
	logger    *slog.Logger
	kv        storage.KV
	backend   *client.Client
	session   *session.Controller
	evaluator *access.Evaluator
	resolver  *access.Resolver
}

func openApp(cfg config.Client, logger *slog.Logger) (*app, error) {
	sealer, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	var kv storage.KV
	if cfg.Ephemeral {
		kv = storage.NewMemory()
	} else {
		badgerKV, err := storage.OpenBadger(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open session storage %s: %w", cfg.DataDir, err)
		}
		kv = badgerKV
	}
	if sealer.Configured() {
		kv = storage.NewSealed(kv, sealer)
	}

	backend, err := client.New(client.Options{
		BaseURL:            cfg.ServerURL,
		Timeout:            cfg.Timeout,
		RatePerSecond:      cfg.RatePerSecond,
		RateBurst:          cfg.RateBurst,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
		Logger:             logger,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	store := session.NewStore(kv)
	ctrl := session.NewController(store, backend,
		session.WithLogger(logger),
		session.WithStateHook(func(from, to session.State) {
			logger.Debug("session state", "from", from.String(), "to", to.String())
		}),
	)
	evaluator := access.NewEvaluator(store)

	return &app{
		cfg:       cfg,
		logger:    logger,
		kv:        kv,
		backend:   backend,
		session:   ctrl,
		evaluator: evaluator,
		resolver:  access.NewResolver(evaluator, store, access.DefaultCatalog()),
	}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}
