package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/mchmarny/sbmi/pkg/growth"
	"github.com/urfave/cli/v3"
)

const nameFlagName = "name"

// ReferenceDetail is the stored system plus what its index exposes.
type ReferenceDetail struct {
	data.ReferenceInfo `yaml:",inline"`
	HasLMS             bool                 `json:"has_lms" yaml:"has_lms"`
	SDLevels           []growth.SDLevel     `json:"sd_levels" yaml:"sd_levels"`
	Ages               map[string]AgeExtent `json:"ages" yaml:"ages"`
}

type AgeExtent struct {
	Count int     `json:"count" yaml:"count"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

func newReferenceCmd() *cli.Command {
	nameFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     nameFlagName,
			Aliases:  []string{"n"},
			Usage:    "Reference system name",
			Required: true,
		}
	}

	return &cli.Command{
		Name:    "reference",
		Aliases: []string{"ref"},
		Usage:   "Stored reference system operations",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List stored reference systems",
				Action:  cmdListReferences,
			},
			{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "Show levels, ages and LMS coverage of a reference system",
				Action:  cmdShowReference,
				Flags:   []cli.Flag{nameFlag()},
			},
			{
				Name:    "delete",
				Aliases: []string{"d"},
				Usage:   "Delete a reference system",
				Action:  cmdDeleteReference,
				Flags:   []cli.Flag{nameFlag()},
			},
		},
	}
}

func cmdListReferences(ctx context.Context, _ *cli.Command) error {
	cfg := getConfig(ctx)

	list, err := data.ListReferences(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to list references: %w", err)
	}

	return cfg.encode(list)
}

func cmdShowReference(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	d, err := getReferenceDetail(cfg.DB, cmd.String(nameFlagName))
	if err != nil {
		return err
	}

	return cfg.encode(d)
}

func cmdDeleteReference(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	name := cmd.String(nameFlagName)

	if err := data.DeleteReference(cfg.DB, name); err != nil {
		return fmt.Errorf("failed to delete reference: %w", err)
	}

	slog.Info("reference deleted", "system", name)
	return cfg.encode(map[string]string{"deleted": name})
}

func getReferenceDetail(db *sqlx.DB, name string) (*ReferenceDetail, error) {
	info, err := data.GetReference(db, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}

	ix, err := data.LoadIndex(db, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference: %w", err)
	}

	d := &ReferenceDetail{
		ReferenceInfo: *info,
		HasLMS:        ix.HasLMS(),
		SDLevels:      ix.SDLevels(),
		Ages:          make(map[string]AgeExtent, 2),
	}
	for _, sex := range []growth.Sex{growth.Male, growth.Female} {
		p, err := ix.Partition(sex)
		if err != nil {
			return nil, err
		}
		if p.Len() == 0 {
			continue
		}
		maxAge, err := ix.MaxAge(sex)
		if err != nil {
			return nil, err
		}
		d.Ages[sex.String()] = AgeExtent{
			Count: p.Len(),
			Min:   p.Ages()[0],
			Max:   maxAge,
		}
	}

	return d, nil
}

// standardizers caches one standardizer per reference system.
type standardizers struct {
	mu    sync.Mutex
	db    *sqlx.DB
	items map[string]*growth.Standardizer
}

func newStandardizers(db *sqlx.DB) *standardizers {
	return &standardizers{
		db:    db,
		items: make(map[string]*growth.Standardizer),
	}
}

func (s *standardizers) get(system string) (*growth.Standardizer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if std, ok := s.items[system]; ok {
		return std, nil
	}

	ix, err := data.LoadIndex(s.db, system)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference: %w", err)
	}
	std, err := growth.NewStandardizer(ix)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", system, err)
	}

	s.items[system] = std
	return std, nil
}
