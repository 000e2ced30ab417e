package cmd

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/payment"
	"github.com/spigell/mutual-match/internal/results"
	"github.com/spigell/mutual-match/internal/server"
	"github.com/spigell/mutual-match/internal/storage/dynamo"
)

const (
	app       = "mutual-match"
	envPrefix = "MUTUAL_MATCH"
)

type Config struct {
	// Catalog points to a YAML catalog file. The built-in catalog is used
	// when empty.
	Catalog string         `mapstructure:"catalog"`
	Storage *StorageConfig `mapstructure:"storage"`
	Server  server.Config  `mapstructure:"server"`
	Teaser  results.Config `mapstructure:"teaser"`
	Payment *PaymentConfig `mapstructure:"payment"`
	Admin   *AdminConfig   `mapstructure:"admin"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	SQLite  struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	Dynamo dynamo.Config `mapstructure:"dynamo"`
}

type PaymentConfig struct {
	payment.Config    `mapstructure:",squash"`
	StripeKey         string `mapstructure:"stripe-key"`
	StripeKeyFile     string `mapstructure:"stripe-key-file"`
	WebhookSecret     string `mapstructure:"webhook-secret"`
	WebhookSecretFile string `mapstructure:"webhook-secret-file"`
}

type AdminConfig struct {
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "mutual-match pairs two partners' quiz answers and shows only what both want",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is mutual-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	srv := server.DefaultConfig()
	teaser := results.DefaultConfig()
	pay := payment.DefaultConfig()

	viper.SetDefault("catalog", "")
	viper.SetDefault("storage.backend", "sqlite")
	viper.SetDefault("storage.sqlite.path", "data/"+app+".db")
	viper.SetDefault("storage.dynamo.region", "")
	viper.SetDefault("storage.dynamo.endpoint", "")
	viper.SetDefault("storage.dynamo.sessions-table", "quiz_sessions")
	viper.SetDefault("storage.dynamo.referrals-table", "referral_codes")
	viper.SetDefault("server.address", srv.Address)
	viper.SetDefault("server.allowed-origins", srv.AllowedOrigins)
	viper.SetDefault("server.read-timeout", srv.ReadTimeout)
	viper.SetDefault("server.webhook-cache-size", srv.WebhookCacheSize)
	viper.SetDefault("teaser.quota", teaser.Quota)
	viper.SetDefault("teaser.perfect-limit", teaser.PerfectLimit)
	viper.SetDefault("payment.price-cents", pay.PriceCents)
	viper.SetDefault("payment.currency", pay.Currency)
	viper.SetDefault("payment.base-url", pay.BaseURL)

	// Secrets have no defaults but must be known keys for env overrides.
	for _, key := range []string{
		"payment.stripe-key", "payment.stripe-key-file",
		"payment.webhook-secret", "payment.webhook-secret-file",
		"admin.password", "admin.password-file",
	} {
		viper.SetDefault(key, "")
	}
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && (cfgFile != "" || !errors.As(err, &notFound)) {
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

func loadCatalog(path string, quick bool) (*catalog.Catalog, error) {
	if path == "" {
		if quick {
			return catalog.Quick(), nil
		}
		return catalog.Default(), nil
	}

	c, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	if quick {
		return c.Subset(quickIDs()), nil
	}
	return c, nil
}

func quickIDs() []string {
	questions := catalog.Quick().Questions()
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids
}
