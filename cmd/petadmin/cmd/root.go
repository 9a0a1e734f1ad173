package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/cmd/rules"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/cmd/users"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/config"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "petadmin",
	Short: "Pet registry administration server",
	Long: `petadmin serves the pet registry admin API: the permission catalog,
groups and direct grants, effective permission resolution and identity
provisioning for users signing in through an external identity provider.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger = newLogger(cfg, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a config file (yaml, json or toml)")
	flags.String("db-url", "", "Database connection URL (env: PETADMIN_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: PETADMIN_SERVER_ADDR)")
	flags.String("rules", "", "Provisioning rules file (env: PETADMIN_RULES_PATH)")
	flags.Bool("debug", false, "Enable debug logging (env: PETADMIN_DEBUG)")
	flags.String("log-format", "", "Log format: text or json (env: PETADMIN_LOG_FORMAT)")

	bindFlag("database_url", "db-url")
	bindFlag("server_addr", "server-addr")
	bindFlag("rules_path", "rules")
	bindFlag("debug", "debug")
	bindFlag("log_format", "log-format")

	rootCmd.AddCommand(rules.RulesCmd)
	rootCmd.AddCommand(users.UsersCmd)
}

// bindFlag binds a persistent flag to a viper key. Unset flags fall through
// to the environment and then to defaults.
func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// newLogger builds the process logger from the log settings. Debug forces
// the debug level.
func newLogger(c *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if c.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
