package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jvbeek/pricewatch/internal/catalog/postgres"
	"github.com/jvbeek/pricewatch/internal/core/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent collection jobs and provider schedules",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("status requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	schedules, err := postgres.NewScheduleRepo(db).GetAll(ctx)
	if err != nil {
		slog.Error("failed to query schedules", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSCHEDULE\tACTIVE\tLAST RUN\tNEXT RUN")
	for _, s := range schedules {
		lastRun, nextRun := "-", "-"
		if s.LastRun != nil {
			lastRun = s.LastRun.Format("2006-01-02 15:04")
		}
		if s.NextRun != nil {
			nextRun = s.NextRun.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", s.Provider, s.Expression, s.Active, lastRun, nextRun)
	}
	_ = w.Flush()
	fmt.Println()

	jobs, err := postgres.NewJobRepo(db).List(ctx, "", 10)
	if err != nil {
		slog.Error("failed to query jobs", "error", err)
		os.Exit(1)
	}

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tPROVIDER\tKIND\tSTATE\tPROCESSED\tSKIPPED\tERROR")
	for _, j := range jobs {
		errMsg := "-"
		if j.LastError != "" {
			errMsg = j.LastError
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			j.ID, j.Provider, j.Kind, j.State, j.RecordsProcessed, j.RecordsSkipped, errMsg)
	}
	_ = w.Flush()
}
