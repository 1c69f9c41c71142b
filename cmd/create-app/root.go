package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/burugo/tenantdb"
)

const defaultConnectionString = "sqlite://reindex.db"

var appNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// rootOptions holds the command flags.
type rootOptions struct {
	ConfigPath       string
	ConnectionString string
	Verbose          bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "create-app [APP]",
		Short:         "Create a tenant application and print its secret",
		Long:          "Create a tenant application and print its secret.\nWithout APP, the application is taken from db_name and hostname of the config file.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg, err = resolveApp(cfg, args); err != nil {
				return err
			}
			logger, err := newLogger(opts.Verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runCreateApp(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.ConnectionString, "connection-string", "", "database connection string (overrides the config file)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	return cmd
}

func loadConfig(opts *rootOptions) (tenantdb.Config, error) {
	var cfg tenantdb.Config
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = tenantdb.LoadConfig(opts.ConfigPath); err != nil {
			return cfg, err
		}
	} else {
		cfg = tenantdb.DefaultConfig()
		cfg.ConnectionString = defaultConnectionString
	}
	if opts.ConnectionString != "" {
		cfg.ConnectionString = opts.ConnectionString
	}
	return cfg, cfg.Validate()
}

// resolveApp picks the application from the argument, falling back to the
// configured db_name and hostname.
func resolveApp(cfg tenantdb.Config, args []string) (tenantdb.Config, error) {
	switch {
	case len(args) == 1:
		return cfg.ForApp(args[0]), nil
	case cfg.DBName == "":
		return cfg, errors.New("an app name is required, as an argument or db_name in the config")
	case cfg.Hostname == "":
		return cfg.ForApp(cfg.DBName), nil
	default:
		return cfg, nil
	}
}

// newLogger builds a production logger on stderr; verbose lowers the level to debug.
func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

func runCreateApp(ctx context.Context, cfg tenantdb.Config, logger *zap.Logger, out io.Writer) error {
	name := cfg.DBName
	if !appNamePattern.MatchString(name) {
		return fmt.Errorf("invalid app name %q", name)
	}

	app, cleanup, err := initializeApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Client.CreateStorage(ctx); err != nil {
		return fmt.Errorf("create storage for %s: %w", name, err)
	}
	secret, err := app.Client.CreateSecret(ctx)
	if err != nil {
		return fmt.Errorf("create secret for %s: %w", name, err)
	}

	stats := app.Client.Stats()
	logger.Debug("app created", zap.String("app", name), zap.Int("operations", stats.Count), zap.Duration("took", stats.TotalTime))
	fmt.Fprintf(out, "app: %s\nsecret: %s\n", app.Client.Hostname(), secret)
	return nil
}
