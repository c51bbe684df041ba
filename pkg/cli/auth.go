package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "github_token"
	keyringService = "sbmi"
	keyringUser    = "github_token"

	tokenFlagName = "token"
)

var errEmptyToken = errors.New("token is empty")

func newAuthCmd() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Store a GitHub access token used to import reference tables from GitHub",
		UsageText: `sbmi auth --token ghp_...
   echo $GITHUB_TOKEN | sbmi auth`,
		Action: cmdAuth,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  tokenFlagName,
				Usage: "GitHub access token (default: read from stdin)",
			},
		},
	}
}

func cmdAuth(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	token := cmd.String(tokenFlagName)
	if token == "" {
		fmt.Fprint(cfg.out, "GitHub token: ")
		line, err := bufio.NewReader(cfg.in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading token: %w", err)
		}
		token = line
	}

	if err := saveGitHubToken(cfg.Dir, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(cfg.out, "Token saved")
	return nil
}

// saveGitHubToken stores token in the OS keychain, or in a file under dir
// when no keychain is available.
func saveGitHubToken(dir, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errEmptyToken
	}

	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(filepath.Join(dir, tokenFileName), []byte(token), fileMode)
	}

	// a keychain entry supersedes the file
	if err := os.Remove(filepath.Join(dir, tokenFileName)); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove token file", "error", err)
	}
	return nil
}

// getGitHubToken reads the token from the keychain, then from the file
// under dir, migrating a file token into the keychain.
func getGitHubToken(dir string) (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	tokenPath := filepath.Join(dir, tokenFileName)
	b, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", tokenPath, err)
	}
	token = strings.TrimSpace(string(b))
	if token == "" {
		return "", errEmptyToken
	}

	if err := keyring.Set(keyringService, keyringUser, token); err == nil {
		slog.Info("migrated token from file to OS keychain")
		if err := os.Remove(tokenPath); err != nil {
			slog.Debug("failed to remove token file", "error", err)
		}
	}

	return token, nil
}
