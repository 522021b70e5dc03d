package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvbeek/pricewatch/internal/core/config"
	"github.com/jvbeek/pricewatch/internal/core/domain"
)

var (
	triggerKind string
	triggerAddr string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [provider]",
	Short: "Start a collection run for a provider on a running service",
	Args:  cobra.ExactArgs(1),
	Run:   runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerKind, "kind", string(domain.JobKindFullSync), "job kind: full_sync, price_update, validate_only")
	triggerCmd.Flags().StringVar(&triggerAddr, "addr", "", "service address (default localhost with the configured port)")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) {
	addr := triggerAddr
	if addr == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	body, _ := json.Marshal(map[string]string{
		"provider": args[0],
		"kind":     triggerKind,
	})

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(addr+"/api/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to reach service", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusAccepted {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		fmt.Printf("service refused the run (%d): %s\n", resp.StatusCode, payload.Error)
		os.Exit(1)
	}

	var job domain.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		slog.Error("failed to decode response", "error", err)
		os.Exit(1)
	}
	fmt.Printf("started job %s for %s (%s)\n", job.ID, job.Provider, job.Kind)
}
