package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/regionocr/pkg/models"
)

var (
	regionsFile  string
	downloadPath string
	downloadNow  bool
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs",
	Long:  `Commands for creating jobs, assigning regions, running the pipeline and exporting results.`,
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create <image>",
	Short: "Upload an image and create a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCreate,
}

var jobsRegionsCmd = &cobra.Command{
	Use:   "regions <job-id>",
	Short: "Replace the regions of a job",
	Long: `Reads regions from a YAML or JSON file, either as {"regions": [...]} or as a
bare list of {id, polygon, type, order} entries.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsRegions,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run the OCR pipeline for every region",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRun,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job and its regions",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsExportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a completed job as HWPX",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsExport,
}

var jobsDownloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download the last exported HWPX archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDownload,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsRegionsCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsExportCmd)
	jobsCmd.AddCommand(jobsDownloadCmd)

	jobsRegionsCmd.Flags().StringVarP(&regionsFile, "file", "f", "", "YAML or JSON file with regions (required)")
	jobsRegionsCmd.MarkFlagRequired("file")

	jobsExportCmd.Flags().BoolVar(&downloadNow, "download", false, "download the archive after exporting")
	jobsExportCmd.Flags().StringVarP(&downloadPath, "out", "o", "", "archive destination (default <job-id>.hwpx)")
	jobsDownloadCmd.Flags().StringVarP(&downloadPath, "out", "o", "", "archive destination (default <job-id>.hwpx)")
}

func runJobsCreate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	body, contentType, err := multipartImage(filepath.Base(args[0]), data)
	if err != nil {
		return err
	}

	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	var job models.Job
	if err := client.Do(cmd.Context(), http.MethodPost, "/jobs", body, contentType, http.StatusCreated, &job); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), job)
	}
	displayJob(cmd.OutOrStdout(), &job)
	fmt.Fprintf(cmd.OutOrStdout(), "\nJob created: %s\n", job.ID)
	return nil
}

func multipartImage(filename string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// LoadRegions reads a region set from YAML or JSON
func LoadRegions(data []byte) (*models.RegionSetRequest, error) {
	var req models.RegionSetRequest
	if err := yaml.Unmarshal(data, &req); err == nil && req.Regions != nil {
		return &req, nil
	}
	var list []models.RegionRequest
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse regions: %w", err)
	}
	if list == nil {
		list = []models.RegionRequest{}
	}
	return &models.RegionSetRequest{Regions: list}, nil
}

func runJobsRegions(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(regionsFile)
	if err != nil {
		return fmt.Errorf("failed to read regions file: %w", err)
	}
	req, err := LoadRegions(data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	var resp models.RegionSetResponse
	if err := client.Do(cmd.Context(), http.MethodPut, "/jobs/"+args[0]+"/regions", body, "application/json", http.StatusOK, &resp); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d region(s) on job %s\n", resp.Message, resp.Count, args[0])
	return nil
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	start := time.Now()
	var resp models.RunResponse
	if err := client.Do(cmd.Context(), http.MethodPost, "/jobs/"+args[0]+"/run", nil, "", http.StatusOK, &resp); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s in %s\n", resp.JobID, resp.Status, time.Since(start).Round(time.Millisecond))
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	var job models.Job
	if err := client.Do(cmd.Context(), http.MethodGet, "/jobs/"+args[0], nil, "", http.StatusOK, &job); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), job)
	}
	displayJob(cmd.OutOrStdout(), &job)
	if len(job.Regions) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		displayRegions(cmd.OutOrStdout(), job.Regions)
	}
	return nil
}

type jobsListResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Count int          `json:"count"`
}

func runJobsList(cmd *cobra.Command, args []string) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	var result jobsListResponse
	if err := client.Do(cmd.Context(), http.MethodGet, "/jobs", nil, "", http.StatusOK, &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), result)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Job ID", "Status", "Regions", "Export", "Created")
	for _, job := range result.Jobs {
		table.Append(
			job.ID,
			string(job.Status),
			strconv.Itoa(len(job.Regions)),
			valueOr(job.ExportURL, "-"),
			job.CreatedAt.Format(time.RFC3339),
		)
	}
	table.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d job(s)\n", result.Count)
	return nil
}

func runJobsExport(cmd *cobra.Command, args []string) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	var resp models.ExportResponse
	if err := client.Do(cmd.Context(), http.MethodPost, "/jobs/"+args[0]+"/export/hwpx", nil, "", http.StatusOK, &resp); err != nil {
		return err
	}

	if IsJSONOutput() {
		if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported: %s\n", resp.DownloadURL)
	}
	if downloadNow {
		return download(cmd.Context(), cmd.OutOrStdout(), client, args[0])
	}
	return nil
}

func runJobsDownload(cmd *cobra.Command, args []string) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	return download(cmd.Context(), cmd.OutOrStdout(), client, args[0])
}

func download(ctx context.Context, out io.Writer, client *Client, jobID string) error {
	dest := downloadPath
	if dest == "" {
		dest = jobID + ".hwpx"
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	n, err := client.Download(ctx, "/jobs/"+jobID+"/export/hwpx", f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	fmt.Fprintf(out, "Saved %s (%d bytes)\n", dest, n)
	return nil
}

func displayJob(w io.Writer, job *models.Job) {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("Job ID", job.ID)
	table.Append("Status", string(job.Status))
	table.Append("Image", valueOr(job.ImageURL, "-"))
	table.Append("Regions", strconv.Itoa(len(job.Regions)))
	table.Append("Export", valueOr(job.ExportURL, "-"))
	if job.Error != "" {
		table.Append("Error", job.Error)
	}
	table.Append("Created At", job.CreatedAt.Format(time.RFC3339))
	table.Append("Updated At", job.UpdatedAt.Format(time.RFC3339))
	table.Render()
}

func displayRegions(w io.Writer, regions []models.Region) {
	table := tablewriter.NewWriter(w)
	table.Header("Region", "Order", "Type", "Status", "Text")
	for _, r := range regions {
		table.Append(r.ID, strconv.Itoa(r.Order), string(r.Type), string(r.Status), truncate(valueOr(r.OCRText, r.Error), 48))
	}
	table.Render()
}

func printJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(output))
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
