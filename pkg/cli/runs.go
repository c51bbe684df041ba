package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/urfave/cli/v3"
)

const (
	limitFlagName = "limit"
	idFlagName    = "id"

	runLimitDefault = 20
)

func newRunsCmd() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "List recent batch runs, or the failed rows of one run",
		Action: cmdRuns,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  limitFlagName,
				Usage: "Limits number of runs returned",
				Value: runLimitDefault,
			},
			&cli.StringFlag{
				Name:  idFlagName,
				Usage: "Run ID whose failed rows to list",
			},
		},
	}
}

func cmdRuns(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	if id := cmd.String(idFlagName); id != "" {
		failures, err := data.GetBatchFailures(cfg.DB, id)
		if err != nil {
			return fmt.Errorf("failed to get run failures: %w", err)
		}
		return cfg.encode(failures)
	}

	list, err := data.ListBatchRuns(cfg.DB, int(cmd.Int(limitFlagName)))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return cfg.encode(list)
}
