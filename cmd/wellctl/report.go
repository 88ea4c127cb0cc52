package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

const dateLayout = "2006-01-02"

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print an analytics report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := reportFilter(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		cfg := loadConfig(cmd)
		log := cliLogger()

		b, err := openBackend(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer b.close()

		svc := service.NewAnalyticsService(b.instruments, b.students, b.submissions, cfg.AnalyticsLocation, log)
		report, err := svc.Compute(ctx, filter)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	reportCmd.Flags().String("instrument", "", "Instrument ID")
	reportCmd.Flags().Int("school", 0, "School ID")
	reportCmd.Flags().String("class", "", "Class label")
	reportCmd.Flags().String("section", "", "Class section")
	reportCmd.Flags().String("bucket", "", "Assigned bucket label")
	reportCmd.Flags().String("from", "", "First day, YYYY-MM-DD")
	reportCmd.Flags().String("to", "", "Last day, YYYY-MM-DD (inclusive)")
}

func reportFilter(cmd *cobra.Command) (model.SubmissionFilter, error) {
	var f model.SubmissionFilter

	if s, _ := cmd.Flags().GetString("instrument"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return f, fmt.Errorf("invalid --instrument: %w", err)
		}
		f.InstrumentID = &id
	}
	f.SchoolID, _ = cmd.Flags().GetInt("school")
	f.ClassLabel, _ = cmd.Flags().GetString("class")
	f.ClassSection, _ = cmd.Flags().GetString("section")
	f.Bucket, _ = cmd.Flags().GetString("bucket")

	for _, d := range []struct {
		flag string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s, _ := cmd.Flags().GetString(d.flag)
		if s == "" {
			continue
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, fmt.Errorf("invalid --%s: %w", d.flag, err)
		}
		*d.dst = &t
	}

	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, fmt.Errorf("--to is before --from")
	}
	return f, nil
}
