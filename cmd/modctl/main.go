package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var baseURL string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "modctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modctl",
		Short: "Operator CLI for the moderation service",
		Long: `modctl drives the moderation admin API: inspect record counts, list
records by status, apply manual review decisions, and requeue failed records.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&baseURL, "api", "http://localhost:8080", "Base URL of the moderation admin API")
	cmd.AddCommand(
		newCountsCmd(),
		newListCmd(),
		newGetCmd(),
		newReviewCmd(),
		newRequeueCmd(),
	)
	return cmd
}

func newCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show record counts grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(cmd.Context(), "/counts")
		},
	}
}

func newListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List moderation records in a given status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/records?status=%s&limit=%d", status, limit)
			return getJSON(cmd.Context(), path)
		},
	}
	cmd.Flags().StringVar(&status, "status", "FLAGGED_FOR_REVIEW", "Record status to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records to return")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <record-id>",
		Short: "Show one moderation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(cmd.Context(), "/records/"+args[0])
		},
	}
}

func newReviewCmd() *cobra.Command {
	var decision, reviewer, notes string
	cmd := &cobra.Command{
		Use:   "review <record-id>",
		Short: "Apply a manual decision to a flagged record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"decision": decision,
				"reviewer": reviewer,
				"notes":    notes,
			}
			return postJSON(cmd.Context(), "/records/"+args[0]+"/review", body)
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "MANUALLY_APPROVED or MANUALLY_REJECTED")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer identity recorded on the decision")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form review notes")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <record-id>",
		Short: "Push a terminal FAILED record back into the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(cmd.Context(), "/records/"+args[0]+"/requeue", nil)
		},
	}
}

func getJSON(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req)
}

func postJSON(ctx context.Context, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
