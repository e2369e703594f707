// Package cmd implements the skillnestx learner CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mdmeraj-dev/skillnestx-go/client"
	"github.com/mdmeraj-dev/skillnestx-go/store/bbolt"
)

var (
	apiURL  string
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "skillnestx",
	Short: "SkillNestX is the learner client for the SkillNestX course platform",
	Long: `The learner-facing client for the SkillNestX online-course platform.
It keeps your session, course progress and visited lessons in a local
database and synchronizes them with the backend.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg, err := client.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", cfg.BaseURL, "backend base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", cfg.DataDir, "local state directory")
}

// newClient opens the local state database and builds the shared client.
// The returned closer must be called when the command finishes.
func newClient() (*client.Client, func(), error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := bbolt.Open(filepath.Join(dataDir, "skillnestx.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local state: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	c := client.New(apiURL, st,
		client.WithLogger(logger),
		client.WithExpiryHandler(func(reason string) {
			fmt.Fprintf(os.Stderr, "%s — run `skillnestx login`\n", reason)
		}),
	)
	return c, func() { st.Close() }, nil
}
