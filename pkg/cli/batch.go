package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/mchmarny/sbmi/pkg/growth"
	"github.com/mchmarny/sbmi/pkg/table"
	"github.com/urfave/cli/v3"
)

const (
	inputFlagName        = "input"
	outputFlagName       = "output"
	bmiColumnFlagName    = "bmi-column"
	ageUnitFlagName      = "age-unit"
	outputColumnFlagName = "output-column"
	workersFlagName      = "workers"
	noSaveFlagName       = "no-save"

	outputSuffix = "-sbmi.csv"
	fileMode     = 0600
)

// BatchOutput reports a finished batch run.
type BatchOutput struct {
	Run    *data.BatchRun      `json:"run" yaml:"run"`
	Output string              `json:"output" yaml:"output"`
	Sum    growth.Summary      `json:"summary" yaml:"summary"`
	Failed []growth.RowFailure `json:"failed" yaml:"failed"`
}

func newBatchCmd() *cli.Command {
	return &cli.Command{
		Name:    "batch",
		Aliases: []string{"b"},
		Usage:   "Standardize every row of a CSV or XLSX table and write the augmented CSV",
		UsageText: `sbmi batch --input cohort.csv
   sbmi batch --input cohort.xlsx --age-column age --age-unit years --output out.csv`,
		Action: cmdBatch,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  systemFlagName,
				Usage: "Reference system (default: from config)",
			},
			&cli.StringFlag{
				Name:     inputFlagName,
				Aliases:  []string{"i"},
				Usage:    "Input .csv or .xlsx table",
				Required: true,
			},
			&cli.StringFlag{
				Name:    outputFlagName,
				Aliases: []string{"o"},
				Usage:   fmt.Sprintf("Output CSV (default: input name with %s)", outputSuffix),
			},
			&cli.StringFlag{
				Name:  sexColumnFlagName,
				Usage: "Name of the sex column",
				Value: growth.DefaultSexColumn,
			},
			&cli.StringFlag{
				Name:  bmiColumnFlagName,
				Usage: "Name of the BMI column",
				Value: growth.DefaultBMIColumn,
			},
			&cli.StringFlag{
				Name:  ageColumnFlagName,
				Usage: "Name of the age column",
				Value: growth.DefaultAgeColumn,
			},
			&cli.StringFlag{
				Name:  ageUnitFlagName,
				Usage: "Unit of the age column [months, years]",
				Value: string(growth.AgeInMonths),
			},
			&cli.StringFlag{
				Name:  outputColumnFlagName,
				Usage: "Name of the added column",
				Value: growth.DefaultOutputColumn,
			},
			&cli.IntFlag{
				Name:  workersFlagName,
				Usage: "Rows standardized in parallel (default: from config)",
			},
			&cli.BoolFlag{
				Name:  noSaveFlagName,
				Usage: "Do not record the run in the database",
			},
		},
	}
}

func cmdBatch(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	system := cfg.system(cmd)
	input := cmd.String(inputFlagName)

	unit, err := growth.ParseAgeUnit(cmd.String(ageUnitFlagName))
	if err != nil {
		return err
	}

	t, err := table.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	std, err := newStandardizers(cfg.DB).get(system)
	if err != nil {
		return err
	}

	workers := int(cmd.Int(workersFlagName))
	if workers <= 0 {
		workers = cfg.Config.Workers
	}

	b, err := growth.NewBatch(std)
	if err != nil {
		return err
	}
	res, err := b.Run(ctx, t, growth.BatchOptions{
		SexColumn:    cmd.String(sexColumnFlagName),
		BMIColumn:    cmd.String(bmiColumnFlagName),
		AgeColumn:    cmd.String(ageColumnFlagName),
		AgeUnit:      unit,
		OutputColumn: cmd.String(outputColumnFlagName),
		Workers:      workers,
	})
	if err != nil {
		return fmt.Errorf("standardizing %s: %w", input, err)
	}

	output := cmd.String(outputFlagName)
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + outputSuffix
	}
	if err := writeTable(output, res.Table); err != nil {
		return err
	}

	run := data.NewBatchRun(system, input, res)
	if !cmd.Bool(noSaveFlagName) {
		if err := data.SaveBatchRun(cfg.DB, run); err != nil {
			return fmt.Errorf("recording batch run: %w", err)
		}
	}

	slog.Info("batch written", "output", output, "rows", res.Summary.Total, "failed", res.Summary.Failed)

	return cfg.encode(&BatchOutput{
		Run:    run,
		Output: output,
		Sum:    res.Summary,
		Failed: res.Failed,
	})
}

func writeTable(path string, t *table.Table) (retErr error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if err := table.WriteCSV(f, t); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
