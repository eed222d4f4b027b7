package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/cuongbtq/catalog-migrator/internal/api/dto"
	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/runner"
)

func enqueueAction(ctx context.Context, cmd *cli.Command) error {
	req := dto.CreateImportRequest{
		Source:     cmd.String("source"),
		Mode:       cmd.String("mode"),
		BaseURL:    cmd.String("base-url"),
		Links:      cmd.StringSlice("link"),
		Cap:        cmd.Int("cap"),
		Categories: cmd.StringSlice("category"),
		Tags:       cmd.StringSlice("tag"),
		Priority:   cmd.Bool("priority"),
	}

	var resp dto.ImportResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodPost, "/imports", nil, req, &resp); err != nil {
		return err
	}
	return printJob(cmd, &resp)
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	var resp dto.ListImportsResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodGet, "/imports", pageQuery(cmd), nil, &resp); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(cmd, resp)
	}

	table := tablewriter.NewWriter(output(cmd))
	table.Header("Request ID", "Source", "Status", "Processed", "Success", "Error", "Created At")
	for _, job := range resp.Imports {
		if err := table.Append(
			job.RequestID,
			string(job.Source),
			string(job.Status),
			fmt.Sprintf("%d/%d", job.Processed, job.Total),
			strconv.Itoa(job.SuccessCount),
			strconv.Itoa(job.ErrorCount),
			job.CreatedAt.Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	return printCursor(cmd, resp.NextCursor)
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	var resp dto.ImportResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodGet, "/imports/"+cmd.String("request-id"), nil, nil, &resp); err != nil {
		return err
	}
	return printJob(cmd, &resp)
}

func logsAction(ctx context.Context, cmd *cli.Command) error {
	query := map[string]string{"limit": strconv.Itoa(cmd.Int("limit"))}
	var resp dto.ListLogsResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodGet, "/imports/"+cmd.String("request-id")+"/logs", query, nil, &resp); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(cmd, resp)
	}

	w := output(cmd)
	// newest first from the API, printed oldest first
	for i := len(resp.Logs) - 1; i >= 0; i-- {
		entry := resp.Logs[i]
		fmt.Fprintf(w, "%s  %-5s  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Level, entry.Message)
	}
	return nil
}

func resultsAction(ctx context.Context, cmd *cli.Command) error {
	var resp dto.ListResultsResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodGet, "/imports/"+cmd.String("request-id")+"/results", pageQuery(cmd), nil, &resp); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(cmd, resp)
	}

	table := tablewriter.NewWriter(output(cmd))
	table.Header("Item", "Status", "Action", "Destination ID", "Reason", "Message")
	for _, r := range resp.Results {
		destID := ""
		if r.DestinationID != 0 {
			destID = strconv.FormatInt(r.DestinationID, 10)
		}
		if err := table.Append(r.ItemKey, string(r.Status), string(r.Action), destID, string(r.Reason), truncate(r.Message, 60)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	return printCursor(cmd, resp.NextCursor)
}

func cancelAction(ctx context.Context, cmd *cli.Command) error {
	var resp dto.ImportResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodPost, "/imports/"+cmd.String("request-id")+"/cancel", nil, nil, &resp); err != nil {
		return err
	}
	return printJob(cmd, &resp)
}

func tickAction(ctx context.Context, cmd *cli.Command) error {
	path := "/runner"
	if src := cmd.String("source"); src != "" {
		parsed, err := domain.ParseSource(src)
		if err != nil {
			return err
		}
		path += "/" + parsed.String()
	}

	var report runner.Report
	if err := newAPIClient(cmd).operator(ctx, http.MethodPost, path, nil, &report); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(cmd, report)
	}

	table := tablewriter.NewWriter(output(cmd))
	table.Header("Queue", "Msg ID", "Attempt", "Item", "Status", "Reason")
	for _, d := range report.Details {
		if err := table.Append(d.Queue, strconv.FormatInt(d.MessageID, 10), strconv.Itoa(d.Attempt), d.Item, d.Status, string(d.Reason)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(output(cmd), "ok=%t processed=%d\n", report.OK, report.Processed)
	return nil
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	var stats runner.Stats
	query := map[string]string{"request_id": cmd.String("request-id")}
	if err := newAPIClient(cmd).operator(ctx, http.MethodGet, "/queue/stats", query, &stats); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(cmd, stats)
	}

	w := output(cmd)
	table := tablewriter.NewWriter(w)
	table.Header("Queue", "Ready", "In Flight", "Total", "Archived")
	for _, lane := range stats.Lanes {
		if err := table.Append(
			lane.Queue,
			strconv.FormatInt(lane.Ready, 10),
			strconv.FormatInt(lane.InFlight, 10),
			strconv.FormatInt(lane.Total, 10),
			strconv.FormatInt(lane.Archived, 10),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "backlog=%d", stats.Backlog)
	if stats.Warning {
		fmt.Fprint(w, " (over threshold)")
	}
	fmt.Fprintln(w)
	if stats.Request != nil {
		fmt.Fprintf(w, "request: success=%d error=%d pending=%d\n", stats.Request.Success, stats.Request.Error, stats.Request.Pending)
	}
	return nil
}

func destinationSetAction(ctx context.Context, cmd *cli.Command) error {
	req := dto.PutDestinationRequest{
		StoreURL:       cmd.String("store-url"),
		ConsumerKey:    cmd.String("consumer-key"),
		ConsumerSecret: cmd.String("consumer-secret"),
	}
	var resp dto.DestinationResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodPut, "/destination", nil, req, &resp); err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func destinationShowAction(ctx context.Context, cmd *cli.Command) error {
	var resp dto.DestinationResponse
	if err := newAPIClient(cmd).tenant(ctx, http.MethodGet, "/destination", nil, nil, &resp); err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func pageQuery(cmd *cli.Command) map[string]string {
	return map[string]string{
		"status":    cmd.String("status"),
		"page_size": strconv.Itoa(cmd.Int("page-size")),
		"cursor":    cmd.String("cursor"),
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(cmd *cli.Command, v interface{}) error {
	enc := json.NewEncoder(output(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJob(cmd *cli.Command, resp *dto.ImportResponse) error {
	if cmd.Bool("json") || resp.Job == nil {
		return printJSON(cmd, resp)
	}

	w := output(cmd)
	job := resp.Job
	fmt.Fprintf(w, "request_id: %s\n", job.RequestID)
	fmt.Fprintf(w, "source:     %s\n", job.Source)
	fmt.Fprintf(w, "status:     %s\n", job.Status)
	fmt.Fprintf(w, "progress:   %d/%d (success %d, error %d)\n", job.Processed, job.Total, job.SuccessCount, job.ErrorCount)
	if resp.Counts != nil {
		fmt.Fprintf(w, "ledger:     success %d, error %d, pending %d\n", resp.Counts.Success, resp.Counts.Error, resp.Counts.Pending)
	}
	return nil
}

func printCursor(cmd *cli.Command, cursor string) error {
	if cursor != "" {
		_, err := fmt.Fprintf(output(cmd), "next cursor: %s\n", cursor)
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
