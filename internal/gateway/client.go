// Package gateway forwards code execution to a remote piston-compatible
// service. It is the fallback path for languages without a local sandbox
// runtime — the routing decision itself lives in the language table, not
// here.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/pairview/internal/executor"
	"github.com/sakif/pairview/internal/language"
)

// Client implements executor.Executor against a remote execution service.
type Client struct {
	baseURL   string
	http      *http.Client
	languages *language.Table
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewClient creates a gateway client. baseURL points at the service root
// (e.g. "https://emkc.org/api/v2/piston").
func NewClient(baseURL string, languages *language.Table, retry RetryPolicy, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		languages: languages,
		retry:     retry.normalized(),
		logger:    logger,
	}
}

// executeRequest is the remote service's request shape.
type executeRequest struct {
	Language   string        `json:"language"`
	Version    string        `json:"version"`
	Files      []requestFile `json:"files"`
	RunTimeout int64         `json:"run_timeout,omitempty"` // milliseconds, server-side hint
}

type requestFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// executeResponse is the remote service's response shape. Compile and run
// stages report independently; a compile failure never reaches run.
type executeResponse struct {
	Run     stageResult  `json:"run"`
	Compile *stageResult `json:"compile,omitempty"`
}

type stageResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
	Signal string `json:"signal"`
}

// Execute maps the internal language tag to the remote identifiers and
// forwards the code. Unsupported languages fail fast before any network
// call. Rate-limit responses are retried per the policy; any other
// non-success status is surfaced as gateway_unavailable with the response
// body as diagnostic detail.
func (c *Client) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	start := time.Now()

	lang, ok := c.languages.Lookup(req.Language)
	if !ok || lang.Remote.Name == "" {
		return &executor.Result{
			Status:   executor.StatusRejectedInput,
			Error:    fmt.Sprintf("language %q is not supported by the execution gateway", req.Language),
			Duration: time.Since(start),
		}, nil
	}

	body, err := json.Marshal(executeRequest{
		Language:   lang.Remote.Name,
		Version:    lang.Remote.Version,
		Files:      []requestFile{{Name: lang.SourceFile, Content: req.Code}},
		RunTimeout: lang.Timeout.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: encoding request: %w", err)
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		resp, err = c.post(ctx, body)
		if err != nil {
			return &executor.Result{
				Status:   executor.StatusGatewayUnavailable,
				Error:    fmt.Sprintf("execution service unreachable: %v", err),
				Duration: time.Since(start),
			}, nil
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if attempt >= c.retry.MaxAttempts {
			return &executor.Result{
				Status:   executor.StatusGatewayUnavailable,
				Error:    fmt.Sprintf("execution service rate limited after %d attempts", attempt),
				Duration: time.Since(start),
			}, nil
		}

		c.logger.Warn("execution service rate limited, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", c.retry.Delay),
		)
		c.retry.Sleep(c.retry.Delay)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &executor.Result{
			Status:   executor.StatusGatewayUnavailable,
			Error:    fmt.Sprintf("execution service returned %d: %s", resp.StatusCode, string(payload)),
			Duration: time.Since(start),
		}, nil
	}

	var remote executeResponse
	if err := json.Unmarshal(payload, &remote); err != nil {
		return nil, fmt.Errorf("gateway: decoding response: %w", err)
	}

	return mapRemote(&remote, time.Since(start)), nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// mapRemote mirrors the local sandbox's outcome mapping: the remote
// service's own exit code distinguishes success from the program failing.
func mapRemote(remote *executeResponse, elapsed time.Duration) *executor.Result {
	// A compile failure is still the candidate's code failing, reported
	// with the compiler diagnostics.
	if remote.Compile != nil && remote.Compile.Code != 0 {
		diag := remote.Compile.Stderr
		if diag == "" {
			diag = remote.Compile.Stdout
		}
		return &executor.Result{
			Status:   executor.StatusNonZeroExit,
			Error:    diag,
			ExitCode: remote.Compile.Code,
			Duration: elapsed,
		}
	}

	// SIGKILL from the remote runner means its run_timeout fired.
	if remote.Run.Signal == "SIGKILL" {
		return &executor.Result{
			Status:   executor.StatusTimedOut,
			Error:    "Execution timed out.",
			ExitCode: 124,
			Duration: elapsed,
		}
	}

	if remote.Run.Code == 0 {
		return &executor.Result{
			Status:   executor.StatusSuccess,
			Output:   remote.Run.Stdout,
			Error:    remote.Run.Stderr,
			Duration: elapsed,
		}
	}

	diag := remote.Run.Stderr
	if diag == "" {
		diag = remote.Run.Stdout
	}
	return &executor.Result{
		Status:   executor.StatusNonZeroExit,
		Error:    diag,
		ExitCode: remote.Run.Code,
		Duration: elapsed,
	}
}
