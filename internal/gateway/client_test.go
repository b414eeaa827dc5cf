package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/pairview/internal/executor"
	"github.com/sakif/pairview/internal/language"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// noSleepPolicy records requested delays instead of sleeping, so the full
// retry path runs in microseconds.
func noSleepPolicy(maxAttempts int, slept *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       500 * time.Millisecond,
		Sleep: func(d time.Duration) {
			*slept = append(*slept, d)
		},
	}
}

func respondWith(t *testing.T, w http.ResponseWriter, resp executeResponse) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestExecute_Success(t *testing.T) {
	var gotReq executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		respondWith(t, w, executeResponse{Run: stageResult{Stdout: "Hello, World!\n", Code: 0}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, language.NewTable(nil), DefaultRetryPolicy(), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{
		Code:     `puts "Hello, World!"`,
		Language: "ruby",
	})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusSuccess, res.Status)
	assert.Equal(t, "Hello, World!\n", res.Output)

	// The internal tag was mapped to the remote identifiers and the
	// per-language timeout was forwarded as the server-side hint.
	assert.Equal(t, "ruby", gotReq.Language)
	assert.NotEmpty(t, gotReq.Version)
	assert.Equal(t, `puts "Hello, World!"`, gotReq.Files[0].Content)
	assert.Greater(t, gotReq.RunTimeout, int64(0))
}

func TestExecute_NonZeroExit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWith(t, w, executeResponse{Run: stageResult{Stderr: "NameError: undefined", Code: 1}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, language.NewTable(nil), DefaultRetryPolicy(), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "boom", Language: "ruby"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusNonZeroExit, res.Status)
	assert.Equal(t, "NameError: undefined", res.Error)
	assert.Equal(t, 1, res.ExitCode)
}

func TestExecute_CompileFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWith(t, w, executeResponse{
			Compile: &stageResult{Stderr: "error: expected ';'", Code: 1},
			Run:     stageResult{},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, language.NewTable(nil), DefaultRetryPolicy(), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "int main(", Language: "cpp"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusNonZeroExit, res.Status)
	assert.Contains(t, res.Error, "expected ';'")
}

func TestExecute_RemoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWith(t, w, executeResponse{Run: stageResult{Signal: "SIGKILL", Code: -1}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, language.NewTable(nil), DefaultRetryPolicy(), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "loop {}", Language: "ruby"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusTimedOut, res.Status)
	assert.Equal(t, "Execution timed out.", res.Error)
}

func TestExecute_RetriesRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		respondWith(t, w, executeResponse{Run: stageResult{Stdout: "ok\n", Code: 0}})
	}))
	defer srv.Close()

	var slept []time.Duration
	c := NewClient(srv.URL, language.NewTable(nil), noSleepPolicy(3, &slept), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "x", Language: "ruby"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusSuccess, res.Status)
	assert.Equal(t, 3, attempts)
	// Two pauses between three attempts, fixed delay each
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, slept)
}

func TestExecute_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := NewClient(srv.URL, language.NewTable(nil), noSleepPolicy(3, &slept), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "x", Language: "ruby"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusGatewayUnavailable, res.Status)
	assert.Equal(t, 3, attempts)
}

func TestExecute_OtherHTTPErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("runtime pool exhausted"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, language.NewTable(nil), DefaultRetryPolicy(), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "x", Language: "ruby"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusGatewayUnavailable, res.Status)
	assert.Contains(t, res.Error, "runtime pool exhausted")
	assert.Equal(t, 1, attempts, "non-429 statuses must not be retried")
}

func TestExecute_UnsupportedLanguageFailsBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, language.NewTable(nil), DefaultRetryPolicy(), testLogger())

	res, err := c.Execute(context.Background(), executor.Request{Code: "x", Language: "cobol"})
	assert.NoError(t, err)
	assert.Equal(t, executor.StatusRejectedInput, res.Status)
	assert.False(t, called, "no network call for unsupported languages")
}
