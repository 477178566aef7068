package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/provider"
	"github.com/veicheck/veicheck/pkg/fn"
)

// apiError is a non-2xx answer from the lookup API.
type apiError struct {
	Status   int
	Category provider.Category
	Body     string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: http %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// retryable reports whether repeating the call may succeed. Only transport
// failures and an unavailable provider qualify.
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Category == provider.CategoryUnavailable || ae.Status == http.StatusServiceUnavailable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func lookupCmd() *cobra.Command {
	var (
		q       domain.Query
		apiURL  string
		ttlDays int
		retries int
		wait    time.Duration
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "lookup <value>",
		Short: "Resolve a vehicle through the lookup API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Value = args[0]
			body, err := json.Marshal(struct {
				domain.Query
				TTLDays int `json:"ttl_days,omitempty"`
			}{q, ttlDays})
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: timeout}
			endpoint := strings.TrimRight(apiURL, "/") + "/api/vehicles/lookup"
			opts := fn.RetryOpts{
				MaxAttempts: max(retries, 0) + 1,
				InitialWait: wait,
				MaxWait:     30 * time.Second,
				Jitter:      true,
				Retryable:   retryable,
				OnRetry: func(attempt int, err error, wait time.Duration) {
					fmt.Fprintf(cmd.ErrOrStderr(), "attempt %d failed: %v (retrying in %s)\n", attempt, err, wait.Round(time.Millisecond))
				},
			}

			res := fn.Retry(cmd.Context(), opts, func(ctx context.Context) fn.Result[[]byte] {
				return fn.FromPair[[]byte](post(ctx, client, endpoint, body))
			})
			out, err := res.Unwrap()
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if json.Indent(&pretty, out, "", "  ") != nil {
				pretty.Reset()
				pretty.Write(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(pretty.String()))
			return nil
		},
	}
	flagQuery(cmd, &q)
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Lookup API base URL")
	cmd.Flags().IntVar(&ttlDays, "ttl-days", 0, "Cache freshness window in days (0 uses the server default)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries when the provider is unavailable")
	cmd.Flags().DurationVar(&wait, "retry-wait", time.Second, "Initial wait between retries")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Per-request timeout")
	return cmd
}

func post(ctx context.Context, client *http.Client, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		ae := &apiError{Status: resp.StatusCode, Body: string(data)}
		var e struct {
			Category provider.Category `json:"category"`
		}
		if json.Unmarshal(data, &e) == nil {
			ae.Category = e.Category
		}
		return nil, ae
	}
	return data, nil
}
