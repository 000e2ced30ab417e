package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/metrics"
	"github.com/spigell/mutual-match/internal/payment"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/results"
	"github.com/spigell/mutual-match/internal/secrets"
	"github.com/spigell/mutual-match/internal/server"
	"github.com/spigell/mutual-match/internal/session"
	"github.com/spigell/mutual-match/internal/storage/dynamo"
	"github.com/spigell/mutual-match/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the quiz HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "listen address, overrides server.address")
	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}

type backend struct {
	sessions  session.Store
	referrals referral.Store
	health    func(ctx context.Context) error
	close     func() error
}

func openBackend(ctx context.Context, cfg *StorageConfig, logger *zap.Logger) (*backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		store, err := sqlite.Open(cfg.SQLite.Path, logger.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		return &backend{sessions: store, referrals: store, health: store.Ping, close: store.Close}, nil
	case "dynamo", "dynamodb":
		client, err := dynamo.NewClient(ctx, cfg.Dynamo)
		if err != nil {
			return nil, err
		}
		store, err := dynamo.New(client, cfg.Dynamo, logger.Named("dynamo"))
		if err != nil {
			return nil, err
		}
		return &backend{sessions: store, referrals: store, close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config.Storage == nil || config.Payment == nil || config.Admin == nil {
		logger.Fatal("config is incomplete")
	}

	logger.Info("starting the mutual-match server", zap.String("version", version))

	quiz, err := loadCatalog(config.Catalog, false)
	if err != nil {
		logger.Fatal("loading catalog", zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Int("questions", quiz.Len()), zap.String("file", config.Catalog))

	store, err := openBackend(ctx, config.Storage, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err), zap.String("backend", config.Storage.Backend))
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}()

	stripeKey, err := secrets.Load(secrets.Source{
		Name: "stripe secret key", Value: config.Payment.StripeKey, File: config.Payment.StripeKeyFile, Optional: true,
	})
	if err != nil {
		logger.Fatal("loading stripe key", zap.Error(err))
	}
	webhookSecret, err := secrets.Load(secrets.Source{
		Name: "stripe webhook secret", Value: config.Payment.WebhookSecret, File: config.Payment.WebhookSecretFile, Optional: true,
	})
	if err != nil {
		logger.Fatal("loading webhook secret", zap.Error(err))
	}
	adminPassword, err := secrets.Load(secrets.Source{
		Name: "admin password", Value: config.Admin.Password, File: config.Admin.PasswordFile, Optional: true,
	})
	if err != nil {
		logger.Fatal("loading admin password", zap.Error(err))
	}
	if adminPassword == "" {
		logger.Warn("admin password is not configured, admin routes are disabled")
	}

	m := metrics.Default()

	sessions := session.NewService(store.sessions, quiz, m, logger.Named("sessions"))
	referrals := referral.NewService(store.referrals, sessions, logger.Named("referrals"))

	var checkout payment.Checkout
	if stripeKey != "" {
		checkout, err = payment.NewStripe(stripeKey, config.Payment.BaseURL, nil, logger.Named("stripe"))
		if err != nil {
			logger.Fatal("creating stripe client", zap.Error(err))
		}
	} else {
		logger.Warn("stripe key is not configured, only fully discounted unlocks will work")
	}
	if webhookSecret == "" {
		logger.Warn("webhook secret is not configured, payment webhooks will be rejected")
	}

	srv, err := server.New(config.Server, server.Deps{
		Sessions:      sessions,
		Results:       results.NewService(sessions, quiz, config.Teaser, m, logger.Named("results")),
		Payments:      payment.NewService(config.Payment.Config, sessions, referrals, checkout, m, logger.Named("payment")),
		Referrals:     referrals,
		Catalog:       quiz,
		Quick:         quiz.Subset(quickIDs()),
		Recorder:      m,
		Health:        store.health,
		WebhookSecret: webhookSecret,
		AdminPassword: adminPassword,
	}, logger.Named("http"))
	if err != nil {
		logger.Fatal("creating the server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
	logger.Info("stopped")
}
