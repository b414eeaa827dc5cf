package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"log/slog"
	"os"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/executor"
	"github.com/sakif/pairview/internal/language"
	"github.com/sakif/pairview/internal/model"
	"github.com/sakif/pairview/internal/repository"
)

// Hand-written mocks, same pattern as the rest of the codebase: an
// in-memory implementation of the repository interfaces plus a scripted
// executor that records what it was asked to run.

type mockSessionRepo struct {
	sessions map[string]*model.Session
	nextID   int
	updates  []string // languages written via UpdateLanguage
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, session *model.Session) error {
	m.nextID++
	session.ID = fmt.Sprintf("sess-%d", m.nextID)
	stored := *session
	m.sessions[session.ID] = &stored
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	result := *session
	return &result, nil
}

func (m *mockSessionRepo) UpdateLanguage(_ context.Context, id, lang string) error {
	session, ok := m.sessions[id]
	if !ok {
		return apperror.NotFound("session", id)
	}
	session.Language = lang
	m.updates = append(m.updates, lang)
	return nil
}

type mockHistoryRepo struct {
	records []model.ExecutionRecord
	failErr error // when set, Record fails with this
}

func (m *mockHistoryRepo) Record(_ context.Context, record *model.ExecutionRecord) error {
	if m.failErr != nil {
		return m.failErr
	}
	record.ID = fmt.Sprintf("rec-%d", len(m.records)+1)
	m.records = append(m.records, *record)
	return nil
}

func (m *mockHistoryRepo) ListBySession(_ context.Context, sessionID string, _ repository.ListOptions) ([]model.ExecutionRecord, error) {
	var out []model.ExecutionRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockExecutor struct {
	captured  []executor.Request
	returnRes *executor.Result
	returnErr error
}

func (m *mockExecutor) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	m.captured = append(m.captured, req)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return m.returnRes, nil
}

type fixture struct {
	coord    *Coordinator
	sessions *mockSessionRepo
	history  *mockHistoryRepo
	local    *mockExecutor
	remote   *mockExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := newMockSessionRepo()
	history := &mockHistoryRepo{}
	local := &mockExecutor{returnRes: &executor.Result{Status: executor.StatusSuccess, Output: "ok\n", Duration: 50 * time.Millisecond}}
	remote := &mockExecutor{returnRes: &executor.Result{Status: executor.StatusSuccess, Output: "remote ok\n", Duration: 80 * time.Millisecond}}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	coord := New(sessions, history, language.NewTable(nil), local, remote, 0, logger)
	return &fixture{coord: coord, sessions: sessions, history: history, local: local, remote: remote}
}

func (f *fixture) createSession(t *testing.T, lang string, ttl time.Duration) *model.Session {
	t.Helper()
	session := &model.Session{Language: lang, ExpiresAt: time.Now().Add(ttl)}
	if err := f.sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return session
}

func TestSubmit_RoutesLocalLanguageToSandbox(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	res, err := f.coord.Submit(context.Background(), session.ID, "print('hi')", "python")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Status != executor.StatusSuccess {
		t.Errorf("Status = %v, want success", res.Status)
	}
	if len(f.local.captured) != 1 || len(f.remote.captured) != 0 {
		t.Errorf("python should run locally: local=%d remote=%d", len(f.local.captured), len(f.remote.captured))
	}
	if f.local.captured[0].Code != "print('hi')" {
		t.Errorf("executor got code %q", f.local.captured[0].Code)
	}
}

func TestSubmit_RoutesGatewayLanguageRemotely(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "ruby", time.Hour)

	_, err := f.coord.Submit(context.Background(), session.ID, `puts "hi"`, "ruby")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(f.remote.captured) != 1 || len(f.local.captured) != 0 {
		t.Errorf("ruby should run via gateway: local=%d remote=%d", len(f.local.captured), len(f.remote.captured))
	}
}

func TestSubmit_PreconditionOrder(t *testing.T) {
	f := newFixture(t)
	live := f.createSession(t, "python", time.Hour)
	expired := f.createSession(t, "python", -time.Minute)

	tests := []struct {
		name      string
		sessionID string
		code      string
		lang      string
		wantErr   error
	}{
		{"unknown session", "nope", "print(1)", "python", apperror.ErrNotFound},
		{"expired session", expired.ID, "print(1)", "python", apperror.ErrExpired},
		{"empty code", live.ID, "", "python", apperror.ErrValidation},
		{"oversized code", live.ID, strings.Repeat("a", MaxCodeChars+1), "python", apperror.ErrValidation},
		{"unsupported language", live.ID, "print(1)", "fortran", apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Submit(context.Background(), tt.sessionID, tt.code, tt.lang)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// None of the rejected requests may have reached an executor.
	if len(f.local.captured) != 0 || len(f.remote.captured) != 0 {
		t.Errorf("rejected inputs must short-circuit before execution")
	}
}

func TestSubmit_OversizedCodeMessageNamesTheLimit(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	_, err := f.coord.Submit(context.Background(), session.ID, strings.Repeat("a", MaxCodeChars+1), "python")
	if err == nil || !strings.Contains(err.Error(), "50000") {
		t.Errorf("error should name the 50000 character limit, got %v", err)
	}
}

func TestSubmit_SizeLimitCountsCharactersNotBytes(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	// Two bytes per character in UTF-8; well under the limit by
	// character count even though the byte length is past it.
	code := "# " + strings.Repeat("é", MaxCodeChars-10)

	if _, err := f.coord.Submit(context.Background(), session.ID, code, "python"); err != nil {
		t.Fatalf("Submit() rejected multi-byte code under the character limit: %v", err)
	}
	if len(f.local.captured) != 1 {
		t.Errorf("code should have reached the executor")
	}

	_, err := f.coord.Submit(context.Background(), session.ID, strings.Repeat("é", MaxCodeChars+1), "python")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Submit() error = %v, want validation failure past the character limit", err)
	}
}

func TestSubmit_WritesHistoryRecord(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	_, err := f.coord.Submit(context.Background(), session.ID, "print('hi')", "python")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if len(f.history.records) != 1 {
		t.Fatalf("got %d history records, want 1", len(f.history.records))
	}
	rec := f.history.records[0]
	if rec.SessionID != session.ID || rec.Code != "print('hi')" || rec.Status != "success" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.DurationMs != 50 {
		t.Errorf("DurationMs = %d, want 50", rec.DurationMs)
	}
}

func TestSubmit_RecordsFailedRunsToo(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)
	f.local.returnRes = &executor.Result{Status: executor.StatusTimedOut, Error: "Execution timed out.", Duration: 5 * time.Second}

	res, err := f.coord.Submit(context.Background(), session.ID, "while True: pass", "python")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Status != executor.StatusTimedOut {
		t.Errorf("Status = %v, want timed_out", res.Status)
	}
	if len(f.history.records) != 1 || f.history.records[0].Status != "timed_out" {
		t.Errorf("failed runs must still be recorded: %+v", f.history.records)
	}
}

func TestSubmit_HistoryFailureDoesNotBlockResult(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)
	f.history.failErr = errors.New("disk full")

	res, err := f.coord.Submit(context.Background(), session.ID, "print('hi')", "python")
	if err != nil {
		t.Fatalf("Submit() should succeed despite history failure, got %v", err)
	}
	if res.Status != executor.StatusSuccess {
		t.Errorf("Status = %v, want success", res.Status)
	}
}

func TestSubmit_MissingExecutorPath(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	// Deployment without a local Docker runtime but python still routed
	// locally: requests fail with unavailable, no silent fallback.
	f.coord.local = nil

	_, err := f.coord.Submit(context.Background(), session.ID, "print(1)", "python")
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if len(f.remote.captured) != 0 {
		t.Error("routing is static, requests must not fall through to the gateway")
	}
}

func TestSetLanguage(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	if err := f.coord.SetLanguage(context.Background(), session.ID, "go"); err != nil {
		t.Fatalf("SetLanguage() error = %v", err)
	}

	got, _ := f.sessions.GetByID(context.Background(), session.ID)
	if got.Language != "go" {
		t.Errorf("Language = %q, want %q", got.Language, "go")
	}
}

func TestSetLanguage_RejectsUnsupported(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	err := f.coord.SetLanguage(context.Background(), session.ID, "fortran")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if len(f.sessions.updates) != 0 {
		t.Error("invalid language must not be persisted")
	}
}

func TestSetLanguage_RejectsExpiredSession(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", -time.Minute)

	err := f.coord.SetLanguage(context.Background(), session.ID, "go")
	if !errors.Is(err, apperror.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t, "python", time.Hour)

	if _, err := f.coord.Submit(context.Background(), session.ID, "print(1)", "python"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	records, err := f.coord.History(context.Background(), session.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}

	_, err = f.coord.History(context.Background(), "missing", repository.ListOptions{})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown session, got %v", err)
	}
}
