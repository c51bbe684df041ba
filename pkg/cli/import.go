package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/mchmarny/sbmi/pkg/data"
	"github.com/mchmarny/sbmi/pkg/growth"
	"github.com/mchmarny/sbmi/pkg/net"
	"github.com/mchmarny/sbmi/pkg/table"
	"github.com/urfave/cli/v3"
)

const (
	fileFlagName      = "file"
	urlFlagName       = "url"
	githubFlagName    = "github"
	pathFlagName      = "path"
	refFlagName       = "ref"
	kindFlagName      = "kind"
	sexColumnFlagName = "sex-column"
	ageColumnFlagName = "age-column"
	sourceFlagName    = "source"
	saveAsFlagName    = "save-as"
)

type ImportResult struct {
	Reference *data.ReferenceInfo `json:"reference" yaml:"reference"`
	HasLMS    bool                `json:"has_lms" yaml:"has_lms"`
	SDLevels  int                 `json:"sd_levels" yaml:"sd_levels"`
	Duration  string              `json:"duration" yaml:"duration"`
}

func newImportCmd() *cli.Command {
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import a reference table (CSV or XLSX) from a file, URL or GitHub repository",
		UsageText: `sbmi import --system RBMI --file rbmi.csv
   sbmi import --system WHO --kind lms --url https://example.org/who-bmi.xlsx
   sbmi import --system RBMI --github owner/repo --path data/rbmi.csv --ref main`,
		Action: cmdImport,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     systemFlagName,
				Usage:    "Name under which the reference system is stored",
				Required: true,
			},
			&cli.StringFlag{
				Name:  fileFlagName,
				Usage: "Local .csv or .xlsx file",
			},
			&cli.StringFlag{
				Name:  urlFlagName,
				Usage: "URL of a .csv or .xlsx file",
			},
			&cli.StringFlag{
				Name:  saveAsFlagName,
				Usage: "Keep a local copy of the --url file at this path",
			},
			&cli.StringFlag{
				Name:  githubFlagName,
				Usage: "GitHub repository (owner/repo) holding the file, used with --path",
			},
			&cli.StringFlag{
				Name:  pathFlagName,
				Usage: "File path within the GitHub repository",
			},
			&cli.StringFlag{
				Name:  refFlagName,
				Usage: "Git ref (branch, tag or commit) of the GitHub file",
			},
			&cli.StringFlag{
				Name:  kindFlagName,
				Usage: fmt.Sprintf("Reference kind [%s]", strings.Join(data.ReferenceKinds, ", ")),
				Value: data.KindSD,
			},
			&cli.StringFlag{
				Name:  sexColumnFlagName,
				Usage: "Name of the sex column",
				Value: growth.DefaultSexColumn,
			},
			&cli.StringFlag{
				Name:  ageColumnFlagName,
				Usage: "Name of the age (months) column",
				Value: growth.DefaultAgeColumn,
			},
			&cli.StringFlag{
				Name:  sourceFlagName,
				Usage: "Free-form provenance note (default: where the table was read from)",
			},
		},
	}
}

func cmdImport(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	cfg := getConfig(ctx)

	t, source, err := readReferenceTable(ctx, cmd)
	if err != nil {
		if errors.Is(err, errNoTableSource) {
			return cli.ShowSubcommandHelp(cmd)
		}
		return err
	}
	if v := cmd.String(sourceFlagName); v != "" {
		source = v
	}

	system := cmd.String(systemFlagName)
	ix, err := growth.BuildIndex(system, t, cmd.String(sexColumnFlagName), cmd.String(ageColumnFlagName))
	if err != nil {
		return fmt.Errorf("invalid reference table: %w", err)
	}

	// a stored system must be usable for projection
	if _, err := growth.NewStandardizer(ix); err != nil {
		return fmt.Errorf("invalid reference table: %w", err)
	}

	info, err := data.SaveReference(cfg.DB, cmd.String(kindFlagName), source, ix)
	if err != nil {
		return fmt.Errorf("saving reference: %w", err)
	}

	slog.Info("reference imported", "system", info.Name, "rows", info.Rows, "source", source)

	return cfg.encode(&ImportResult{
		Reference: info,
		HasLMS:    ix.HasLMS(),
		SDLevels:  len(ix.SDLevels()),
		Duration:  time.Since(start).String(),
	})
}

var errNoTableSource = errors.New("one of --file, --url or --github required")

func readReferenceTable(ctx context.Context, cmd *cli.Command) (*table.Table, string, error) {
	file := cmd.String(fileFlagName)
	url := cmd.String(urlFlagName)
	repo := cmd.String(githubFlagName)

	switch {
	case file != "":
		t, err := table.ReadFile(file)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", file, err)
		}
		return t, file, nil

	case url != "" && cmd.String(saveAsFlagName) != "":
		local := cmd.String(saveAsFlagName)
		if err := net.Download(ctx, url, local); err != nil {
			return nil, "", fmt.Errorf("downloading %s: %w", url, err)
		}
		t, err := table.ReadFile(local)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", local, err)
		}
		return t, url, nil

	case url != "":
		rc, err := net.GetReader(ctx, url)
		if err != nil {
			return nil, "", fmt.Errorf("fetching %s: %w", url, err)
		}
		defer rc.Close()
		t, err := table.Read(rc, path.Base(url))
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", url, err)
		}
		return t, url, nil

	case repo != "":
		f, err := net.ParseGitHubFile(repo, cmd.String(pathFlagName), cmd.String(refFlagName))
		if err != nil {
			return nil, "", err
		}
		token, err := getGitHubToken(getConfig(ctx).Dir)
		if err != nil {
			slog.Debug("no GitHub token, using unauthenticated requests", "error", err)
		}
		b, err := net.FetchGitHubFile(ctx, net.NewGitHubClient(ctx, token), f)
		if err != nil {
			return nil, "", err
		}
		t, err := table.Read(bytes.NewReader(b), f.Path)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", f, err)
		}
		return t, f.String(), nil

	default:
		return nil, "", errNoTableSource
	}
}
