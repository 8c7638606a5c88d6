package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/remotepilot/daemon/internal/config"
	"github.com/remotepilot/daemon/internal/metrics"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the pilot daemon's live host metrics",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				cfg = config.Defaults()
			}

			addr := fmt.Sprintf("http://%s:%d/metrics", cfg.Gateway.Host, cfg.Gateway.Port)
			httpClient := &http.Client{Timeout: 3 * time.Second}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
			if err != nil {
				return fmt.Errorf("build status request: %w", err)
			}

			resp, err := httpClient.Do(req)
			if err != nil {
				fmt.Println("Daemon: NOT RUNNING")
				return nil
			}
			defer resp.Body.Close()

			var snap metrics.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				return fmt.Errorf("decode status response: %w", err)
			}

			fmt.Printf("Daemon: ALIVE (cpu %.1f%%, rss %d bytes, aborted %d)\n",
				snap.CPU, snap.RAM, snap.AbortStatus)
			return nil
		},
	}
}
