package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/sbmi/pkg/growth"
	"github.com/urfave/cli/v3"
)

const (
	ageYearsFlagName  = "age-years"
	ageMonthsFlagName = "age-months"
	bmiFlagName       = "bmi"
)

func newStandardizeCmd() *cli.Command {
	return &cli.Command{
		Name:    "standardize",
		Aliases: []string{"s"},
		Usage:   "Standardize one BMI observation to its 18-year equivalent",
		UsageText: `sbmi standardize --sex 1 --age-years 5 --bmi 17.2
   sbmi standardize --system WHO --sex female --age-years 11 --age-months 4 --bmi 23.7`,
		Action: cmdStandardize,
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
			&cli.FloatFlag{
				Name:  ageYearsFlagName,
				Usage: "Age, whole or fractional years",
			},
			&cli.FloatFlag{
				Name:  ageMonthsFlagName,
				Usage: "Age, months (added to --age-years when both are set)",
			},
			&cli.FloatFlag{
				Name:  bmiFlagName,
				Usage: "Body mass index (kg/m²)",
			},
		},
	}
}

func cmdStandardize(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	sex, err := growth.ParseSex(cmd.String(sexFlagName))
	if err != nil {
		return err
	}

	in := growth.Inputs{Sex: sex}
	if cmd.IsSet(ageYearsFlagName) {
		v := cmd.Float(ageYearsFlagName)
		in.AgeYears = &v
	}
	if cmd.IsSet(ageMonthsFlagName) {
		v := cmd.Float(ageMonthsFlagName)
		in.AgeMonths = &v
	}
	if cmd.IsSet(bmiFlagName) {
		v := cmd.Float(bmiFlagName)
		in.BMI = &v
	}

	std, err := newStandardizers(cfg.DB).get(cfg.system(cmd))
	if err != nil {
		return err
	}

	o := std.Outcome(in)
	if err := cfg.encode(o); err != nil {
		return err
	}
	return outcomeError(o)
}

// outcomeError is nil unless o failed; incomplete inputs are not an error.
func outcomeError(o *growth.Outcome) error {
	if o == nil || o.Status != growth.StatusError {
		return nil
	}
	return fmt.Errorf("%s: %s", o.Kind, o.Message)
}
