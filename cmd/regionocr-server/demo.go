package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/regionocr/internal/app"
	"github.com/psantana5/regionocr/pkg/models"
)

var showDemoMetrics bool

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run one job end to end without the HTTP server",
	Long: `Creates a job from a placeholder image, assigns a single mixed region,
runs the pipeline, exports the HWPX archive and prints a JSON summary.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().BoolVar(&showDemoMetrics, "metrics", false, "print the job metrics to stderr afterwards")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.Dir = ""
	logger, err := newLogger(cfg, "demo")
	if err != nil {
		return err
	}
	logger.SetOutput(os.Stderr)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc := a.Service

	job, err := svc.Create(ctx, "demo.png", []byte("demo-image"))
	if err != nil {
		return err
	}
	if _, err := svc.SetRegions(ctx, job.ID, []models.RegionRequest{{
		ID:      "q1",
		Polygon: models.Polygon{{10, 10}, {220, 10}, {220, 140}, {10, 140}},
		Type:    models.RegionTypeMixed,
		Order:   1,
	}}); err != nil {
		return err
	}
	if _, err := svc.Run(ctx, job.ID); err != nil {
		return err
	}
	res, err := svc.Export(ctx, job.ID)
	if err != nil {
		return err
	}
	final, err := svc.Get(ctx, job.ID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]interface{}{
		"job_id": job.ID,
		"export": models.ExportResponse{DownloadURL: res.DownloadURL},
		"status": final.Status,
	}); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if showDemoMetrics && a.Metrics != nil {
		return a.Metrics.WriteText(os.Stderr, "regionocr_")
	}
	return nil
}
