package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"pawdesk/internal/config"
	"pawdesk/internal/scheduler"
	"pawdesk/internal/types"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeRunner struct {
	stats scheduler.Stats
	err   error
	tasks []types.TaskType
}

func (f *fakeRunner) Run(_ context.Context, task types.TaskType, _ time.Time) (scheduler.Stats, error) {
	f.tasks = append(f.tasks, task)
	if task != types.TaskTrialCheck && task != types.TaskDunning {
		return scheduler.Stats{}, types.NewAppError(types.ErrCodeValidationInvalidTask, "unknown task", nil)
	}
	return f.stats, f.err
}

type fakeLock struct {
	acquired bool
	err      error
	lastID   string
}

func (f *fakeLock) Acquire(_ context.Context, lockID, _ string, _ time.Duration) (bool, error) {
	f.lastID = lockID
	return f.acquired, f.err
}

type fakeHistory struct{}

func (fakeHistory) Start(context.Context, types.TaskType) (int64, error) { return 1, nil }
func (fakeHistory) Finish(context.Context, int64, string, int, error) error {
	return nil
}

type fakeDeliveries struct {
	records []types.DeliveryRecord
	err     error
	limits  []int
}

func (f *fakeDeliveries) ListRecent(_ context.Context, limit int) ([]types.DeliveryRecord, error) {
	f.limits = append(f.limits, limit)
	return f.records, f.err
}

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T) (*Server, *fakeRunner, *fakeLock, *fakeDeliveries) {
	t.Helper()
	runner := &fakeRunner{stats: scheduler.Stats{Processed: 4, Published: 2}}
	lock := &fakeLock{acquired: true}
	deliveries := &fakeDeliveries{}
	srv := &Server{
		DB:         &fakePinger{},
		Runner:     runner,
		JobLock:    lock,
		JobHistory: fakeHistory{},
		Deliveries: deliveries,
		AdminKey:   types.SecretString(testAdminKey),
		LockTTL:    10 * time.Minute,
		WorkerID:   "worker-test",
		Build:      config.BuildInfo{Version: "test"},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return srv, runner, lock, deliveries
}

func doRequest(t *testing.T, srv *Server, method, path string, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if admin {
		req.Header.Set("X-Admin-Key", testAdminKey)
	}
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealthzOK(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthzDegradedWhenDBDown(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	srv.DB = &fakePinger{err: errors.New("connection refused")}

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestInternalRoutesRequireAdminKey(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/internal/tasks/trial_check", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/tasks/trial_check", nil)
	req.Header.Set("X-Admin-Key", "wrong-key")
	out := httptest.NewRecorder()
	srv.Routes().ServeHTTP(out, req)
	if out.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d", out.Code)
	}
}

func TestRunTaskSuccess(t *testing.T) {
	srv, runner, lock, _ := newTestServer(t)

	body := `{"reference_time":"2026-09-01T06:30:00Z"}`
	rec := doRequest(t, srv, http.MethodPost, "/internal/tasks/trial_check", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(runner.tasks) != 1 || runner.tasks[0] != types.TaskTrialCheck {
		t.Errorf("tasks = %v", runner.tasks)
	}
	if lock.lastID != "trial_check:2026-09-01T06" {
		t.Errorf("lock id = %q", lock.lastID)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["processed"] != float64(4) {
		t.Errorf("processed = %v", resp["processed"])
	}
}

func TestRunTaskLockHeldConflicts(t *testing.T) {
	srv, runner, lock, _ := newTestServer(t)
	lock.acquired = false

	rec := doRequest(t, srv, http.MethodPost, "/internal/tasks/dunning", "", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(runner.tasks) != 0 {
		t.Error("runner must not run when the lock is held")
	}
}

func TestRunTaskUnknownTaskRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/internal/tasks/compact_disks", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportDeliveriesGzipNDJSON(t *testing.T) {
	srv, _, _, deliveries := newTestServer(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	deliveries.records = []types.DeliveryRecord{
		{ID: "rec-2", TenantID: "ten_1", TemplateKey: types.TemplatePetReady,
			Outcome: types.DeliveryOutcome{Channel: types.ChannelChat, Success: true}, CreatedAt: now},
		{ID: "rec-1", TenantID: "ten_2", TemplateKey: types.TemplatePaymentReminder,
			Outcome: types.DeliveryOutcome{Channel: types.ChannelPush, Simulated: true, Success: true}, CreatedAt: now},
	}

	rec := doRequest(t, srv, http.MethodGet, "/internal/deliveries/export?limit=50", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q", got)
	}
	if deliveries.limits[0] != 50 {
		t.Errorf("limit = %d", deliveries.limits[0])
	}

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()

	var lines []types.DeliveryRecord
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var r types.DeliveryRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line unmarshal: %v", err)
		}
		lines = append(lines, r)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(lines) != 2 || lines[0].ID != "rec-2" || lines[1].ID != "rec-1" {
		t.Errorf("lines = %+v", lines)
	}
}

func TestExportDeliveriesBadLimit(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/internal/deliveries/export?limit=zero", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
