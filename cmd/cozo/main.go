package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/greydoubt/cozo/internal/config"
	"github.com/greydoubt/cozo/internal/engine"
	"github.com/greydoubt/cozo/internal/metrics"
)

const (
	flagConfig   = "config"
	flagBackend  = "backend"
	flagDataDir  = "data-dir"
	flagLogLevel = "log-level"
)

func main() {
	app := &cli.App{
		Name:        "cozo",
		Usage:       "cozo [global options] command [arguments]",
		Description: "Catalog and expression tooling for a cozo database.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "storage backend: badger, bolt or memory",
			},
			&cli.StringFlag{
				Name:  flagDataDir,
				Usage: "data directory of the root store",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			defineCommand(),
			dropCommand(),
			resolveCommand(),
			evalCommand(),
			planCommand(),
			dumpCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cozo: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file if given and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if v := c.String(flagBackend); v != "" {
		cfg.Storage.Backend = v
	}
	if v := c.String(flagDataDir); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := c.String(flagLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the zap logger described by cfg
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// runtime bundles what every command needs.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	engine  *engine.Engine
}

func openRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	m := metrics.NewMetrics(cfg.InstanceID, prometheus.DefaultRegisterer)
	e, err := engine.Open(cfg, logger, m)
	if err != nil {
		logger.Error("Failed to open engine", zap.Error(err))
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, metrics: m, engine: e}, nil
}

func (r *runtime) Close() error {
	err := r.engine.Close()
	_ = r.logger.Sync()
	return err
}

// withSession runs fn in a fresh session, committing when commit is set and
// fn succeeds, aborting otherwise.
func withSession(c *cli.Context, commit bool, fn func(*engine.Session) error) (err error) {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); err == nil {
			err = cerr
		}
	}()

	s, err := rt.engine.NewSession()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		_ = s.Abort()
		return err
	}
	if commit {
		return s.Commit()
	}
	return s.Abort()
}
