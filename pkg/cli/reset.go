package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/urfave/cli/v3"
)

const yesFlagName = "yes"

func newResetCmd() *cli.Command {
	return &cli.Command{
		Name:   "reset",
		Usage:  "Delete all imported references and batch runs and start fresh",
		Action: cmdReset,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    yesFlagName,
				Aliases: []string{"y"},
				Usage:   "Do not ask for confirmation",
			},
		},
	}
}

func cmdReset(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	if !cmd.Bool(yesFlagName) {
		fmt.Fprintf(cfg.out, "This will permanently delete all data in %s\n", cfg.DBPath)
		fmt.Fprint(cfg.out, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(cfg.in).ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(cfg.out, "Aborted.")
			return nil
		}
	}

	if !data.IsSQLite(cfg.DBPath) {
		if err := data.Purge(cfg.DB); err != nil {
			return fmt.Errorf("purging database: %w", err)
		}
		slog.Info("database purged")
		fmt.Fprintln(cfg.out, "Reset complete.")
		return nil
	}

	// close the DB before deleting the file
	if cfg.DB != nil {
		if err := cfg.DB.Close(); err != nil {
			slog.Debug("error closing database", "error", err)
		}
		cfg.DB = nil
	}

	if err := os.Remove(cfg.DBPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting database: %w", err)
	}

	slog.Info("database deleted", "path", cfg.DBPath)

	if err := data.Init(cfg.DBPath); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}

	slog.Info("database re-initialized", "path", cfg.DBPath)
	fmt.Fprintln(cfg.out, "Reset complete.")
	return nil
}
