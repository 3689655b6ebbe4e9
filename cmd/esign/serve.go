package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hestia-platform/esign/internal/api"
	"github.com/hestia-platform/esign/internal/audit"
	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/ceremony"
	"github.com/hestia-platform/esign/internal/config"
	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/store"
	"github.com/hestia-platform/esign/internal/tsa"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP pipeline server",
	Long: `Run the document pipeline: the ceremony API under /api/v1, the
RFC 3161 responder at /tsa, health at /healthz and Prometheus metrics
at /metrics.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := newLogger()
		if cfg.Log.Level != "" {
			if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && !cmd.Flags().Changed("log-level") {
				logger = logger.Level(level)
			}
		}

		manager, err := authority.Load(
			authority.NewStore(cfg.Authority.Dir),
			[]byte(cfg.Authority.RootPassphrase),
			[]byte(cfg.Authority.TSAPassphrase),
			authority.WithSignerAlgorithm(esigncrypto.AlgorithmID(cfg.Authority.SignerAlgorithm)),
			authority.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		auditWriter, err := audit.NewFileWriter(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer auditWriter.Close()

		responder := tsa.NewResponder(manager.TSA().Cert, manager.TSA().Signer,
			tsa.WithLogger(logger))
		c := ceremony.New(st, manager, &tsa.ResponderClient{Responder: responder},
			auditWriter, logger)

		handler := api.NewHandler(c, responder, identity.OTPConfirmer{}, logger)
		router := api.NewRouter(handler, version, logger)
		server := api.NewServer(cfg.Server, router, logger)
		return server.Start(cmd.Context())
	},
}

// openStore selects PostgreSQL when a database URL is configured, the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.Database.URL == "" {
		logger.Warn().Msg("no database configured, state is in-memory only")
		return store.NewMemory(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	pg := store.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info().Msg("database store ready")
	return pg, nil
}
