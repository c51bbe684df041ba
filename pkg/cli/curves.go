package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/mchmarny/sbmi/pkg/growth"
	"github.com/urfave/cli/v3"
)

const levelFlagName = "level"

// CurveSet holds the series of the requested levels for one sex, ready to be
// charted against the child's point.
type CurveSet struct {
	System string        `json:"system" yaml:"system"`
	Sex    growth.Sex    `json:"sex" yaml:"sex"`
	Series []CurveSeries `json:"series" yaml:"series"`
}

type CurveSeries struct {
	Level  string    `json:"level" yaml:"level"`
	Ages   []float64 `json:"ages" yaml:"ages"`
	Values []float64 `json:"values" yaml:"values"`
}

func newCurvesCmd() *cli.Command {
	return &cli.Command{
		Name:    "curves",
		Aliases: []string{"c"},
		Usage:   "Print reference curve series of one sex",
		Action:  cmdCurves,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  systemFlagName,
				Usage: "Reference system (default: from config)",
			},
			&cli.StringFlag{
				Name:     sexFlagName,
				Usage:    "Sex [1|male, 2|female]",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  levelFlagName,
				Usage: "Level to include, can be specified multiple times (default: all SD levels)",
			},
		},
	}
}

func cmdCurves(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	sex, err := growth.ParseSex(cmd.String(sexFlagName))
	if err != nil {
		return err
	}

	ix, err := data.LoadIndex(cfg.DB, cfg.system(cmd))
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}

	set, err := getCurves(ix, sex, cmd.StringSlice(levelFlagName))
	if err != nil {
		return err
	}

	return cfg.encode(set)
}

func getCurves(ix *growth.Index, sex growth.Sex, levels []string) (*CurveSet, error) {
	p, err := ix.Partition(sex)
	if err != nil {
		return nil, err
	}

	if len(levels) == 0 {
		for _, l := range ix.SDLevels() {
			levels = append(levels, l.Name)
		}
	}

	known := ix.Levels()
	set := &CurveSet{
		System: ix.System(),
		Sex:    sex,
		Series: make([]CurveSeries, 0, len(levels)),
	}
	for _, l := range levels {
		if !data.Contains(known, l) {
			return nil, fmt.Errorf("%w: %s has no level %s", growth.ErrMissingField, ix.System(), l)
		}
		ages, values := p.Series(l)
		set.Series = append(set.Series, CurveSeries{Level: l, Ages: ages, Values: values})
	}

	return set, nil
}
