package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/harvester/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored outcome of recent jobs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "number of jobs to show, 0 for all")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("status requires database.url: results are not kept without a database")
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	records, err := postgres.NewResultRepo(db.DB).List(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list job results", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tBACKEND\tSTATE\tITEMS\tRESUMED\tLAST UUID\tUPDATED")

	for _, rec := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			rec.Result.JobID, rec.Result.Backend, rec.State, rec.Result.NItems,
			rec.Result.NResumed, rec.Result.LastUUID, rec.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
