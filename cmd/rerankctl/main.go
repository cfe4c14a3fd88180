// Package main implements rerankctl, a CLI for manual requests against a
// running rerankd.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	httpserver "github.com/fyrsmithlabs/rerankd/internal/http"
	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every command.
type options struct {
	serverURL string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "rerankctl",
		Short: "CLI for rerankd",
		Long: `rerankctl sends rerank requests to a running rerankd and checks its health.
It is meant for manual testing and operations.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:8086", "rerankd server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(newRerankCmd(opts))
	root.AddCommand(newHealthCmd(opts))
	return root
}

func newRerankCmd(opts *options) *cobra.Command {
	var (
		query       string
		model       string
		file        string
		topN        int
		threshold   float64
		noDocuments bool
	)

	cmd := &cobra.Command{
		Use:   "rerank [document...]",
		Short: "Rerank documents against a query",
		Long: `Rerank documents against a query and print the JSON response.

Documents are taken from the arguments, or one per line from --file.

Examples:
  # Rerank inline documents
  rerankctl rerank -q "capital of the United States" "Carson City is..." "Washington, D.C. is..."

  # Rerank lines from a file, keeping the best three
  rerankctl rerank -q "capital" --file docs.txt --top-n 3

  # Read documents from stdin
  cat docs.txt | rerankctl rerank -q "capital" --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := args
			if file != "" {
				var err error
				if docs, err = readLines(cmd.InOrStdin(), file); err != nil {
					return err
				}
			}

			req := rerank.Request{
				Model:     model,
				Query:     query,
				Documents: docs,
			}
			if cmd.Flags().Changed("top-n") {
				req.TopN = &topN
			}
			if cmd.Flags().Changed("threshold") {
				req.ScoreThreshold = &threshold
			}
			if noDocuments {
				f := false
				req.ReturnDocumentsFlag = &f
			}

			resp, err := postRerank(opts, &req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "query to rank documents against")
	cmd.Flags().StringVar(&model, "model", "", "model name echoed in the response")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read documents from file, one per line (- for stdin)")
	cmd.Flags().IntVarP(&topN, "top-n", "n", 0, "keep only the best N results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "drop results scoring below this value")
	cmd.Flags().BoolVar(&noDocuments, "no-documents", false, "omit document text from results")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check rerankd liveness and backend readiness",
		Long: `Check the liveness of rerankd and the readiness of its backend.

Examples:
  # Check health
  rerankctl health

  # Check health on a different server
  rerankctl health --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: opts.timeout}
			out := cmd.OutOrStdout()

			var health httpserver.HealthResponse
			if err := getJSON(client, opts.serverURL+"/health", &health); err != nil {
				return err
			}
			fmt.Fprintf(out, "Server Status:  %s\n", health.Status)
			if health.Version != "" {
				fmt.Fprintf(out, "Server Version: %s\n", health.Version)
			}
			fmt.Fprintf(out, "Server URL:     %s\n", opts.serverURL)

			var ready httpserver.ReadyResponse
			if err := getJSON(client, opts.serverURL+"/ready", &ready); err != nil {
				fmt.Fprintf(out, "Backend:        %s\n", ready.Status)
				return err
			}
			fmt.Fprintf(out, "Backend:        %s\n", ready.Status)
			return nil
		},
	}
}

// postRerank sends req to POST /rerank.
func postRerank(opts *options, req *rerank.Request) (*rerank.Response, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := opts.serverURL + "/rerank"
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out rerank.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// getJSON decodes the body of GET url into v. Non-200 bodies are still
// decoded into v when possible.
func getJSON(client *http.Client, url string, v interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	decodeErr := json.Unmarshal(body, v)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return nil
}

// statusError turns an error envelope into an error.
func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, err)
	}
	var envelope httpserver.ErrorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, envelope.Error)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// readLines returns the non-empty lines of path, or of stdin when path is "-".
func readLines(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return lines, nil
}
