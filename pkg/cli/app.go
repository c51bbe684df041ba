package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/sbmi/pkg/config"
	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/mchmarny/sbmi/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "sbmi"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName     = "debug"
	dbFlagName        = "db"
	formatFlagName    = "format"
	configDirFlagName = "config-dir"
	logLevelFlagName  = "log-level"
	systemFlagName    = "system"
	sexFlagName       = "sex"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

type appConfigKey struct{}

// appConfig is the per-invocation state shared by all commands.
type appConfig struct {
	Dir    string
	DBPath string
	Debug  bool
	Format string
	Config *config.Config
	DB     *sqlx.DB

	out io.Writer
	in  io.Reader
}

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false, "")

	app := newApp(os.Stdout, os.Stdin)
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func getConfig(ctx context.Context) *appConfig {
	cfg, ok := ctx.Value(appConfigKey{}).(*appConfig)
	if !ok {
		panic("app config not initialized")
	}
	return cfg
}

func newApp(out io.Writer, in io.Reader) *cli.Command {
	var cfg *appConfig

	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:                 "Standardize pediatric BMI against growth references",
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Writer:                out,
		Reader:                in,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:  dbFlagName,
				Usage: "Sqlite database file path or postgres:// DSN (default: from config)",
			},
			&cli.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml] (default: from config)",
			},
			&cli.StringFlag{
				Name:    configDirFlagName,
				Usage:   "Directory holding config.yaml, .env and the default database",
				Sources: cli.EnvVars("SBMI_HOME"),
			},
			&cli.StringFlag{
				Name:  logLevelFlagName,
				Usage: "Log level [debug, info, warn, error] (default: from config)",
			},
		},
		Commands: []*cli.Command{
			newImportCmd(),
			newReferenceCmd(),
			newCurvesCmd(),
			newStandardizeCmd(),
			newBatchCmd(),
			newRunsCmd(),
			newServerCmd(),
			newAuthCmd(),
			newResetCmd(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			c, err := loadAppConfig(cmd, out, in)
			if err != nil {
				return ctx, err
			}
			cfg = c
			return context.WithValue(ctx, appConfigKey{}, cfg), nil
		},
		After: func(_ context.Context, _ *cli.Command) error {
			if cfg != nil && cfg.DB != nil {
				return cfg.DB.Close()
			}
			return nil
		},
	}
}

// loadAppConfig layers the flags over the environment over the config file,
// then opens the database.
func loadAppConfig(cmd *cli.Command, out io.Writer, in io.Reader) (*appConfig, error) {
	dir := cmd.String(configDirFlagName)
	if dir == "" {
		d, _, err := config.GetOrCreateHomeDir(appName)
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		dir = d
	}

	conf, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if v := cmd.String(dbFlagName); v != "" {
		conf.DB = v
	}
	if v := cmd.String(formatFlagName); v != "" {
		conf.Format = v
	}
	if v := cmd.String(logLevelFlagName); v != "" {
		conf.LogLevel = v
	}
	if conf.Format == "yml" {
		conf.Format = formatYAML
	}
	if conf.Format != formatJSON && conf.Format != formatYAML {
		return nil, fmt.Errorf("unsupported format: %s", conf.Format)
	}

	debug := cmd.Bool(debugFlagName)
	initLogging(debug, conf.LogLevel)

	if err := data.Init(conf.DB); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(conf.DB)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	slog.Debug("config loaded", "dir", dir, "driver", data.DriverName(conf.DB), "system", conf.System)

	return &appConfig{
		Dir:    dir,
		DBPath: conf.DB,
		Debug:  debug,
		Format: conf.Format,
		Config: conf,
		DB:     db,
		out:    out,
		in:     in,
	}, nil
}

func initLogging(debug bool, level string) {
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
}

func (c *appConfig) encode(v any) error {
	if c.Format == formatYAML {
		e := yaml.NewEncoder(c.out)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(c.out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// system returns the reference system named by the command flag or the
// configured default.
func (c *appConfig) system(cmd *cli.Command) string {
	if v := cmd.String(systemFlagName); v != "" {
		return v
	}
	return c.Config.System
}

func isNotFound(err error) bool {
	return errors.Is(err, data.ErrNotFound)
}
