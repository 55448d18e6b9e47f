package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/reconcile"
	"github.com/danmuck/republish/internal/testutil/testlog"
)

type stubStatus struct{ st reconcile.Status }

func (s stubStatus) Status() reconcile.Status { return s.st }

type stubTolerance struct{ remaining, budget int }

func (s stubTolerance) Remaining() int { return s.remaining }
func (s stubTolerance) Budget() int    { return s.budget }

type stubJournal struct {
	entries   []reconcile.Outcome
	err       error
	lastLimit int
}

func (j *stubJournal) List(limit int) ([]reconcile.Outcome, error) {
	j.lastLimit = limit
	return j.entries, j.err
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr, body
}

func TestStatusIncludesEngineAndTolerance(t *testing.T) {
	testlog.Start(t)

	s := New(Config{Addr: ":0"},
		stubStatus{st: reconcile.Status{Mode: reconcile.ModeAudited, Applied: 4, PendingRounds: 1}},
		stubTolerance{remaining: 3, budget: 5},
		nil,
	)
	rr, body := get(t, s, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	engine := body["engine"].(map[string]any)
	if engine["mode"] != "audited" || engine["applied"] != float64(4) || engine["pending_rounds"] != float64(1) {
		t.Fatalf("unexpected engine body: %#v", engine)
	}
	tol := body["tolerance"].(map[string]any)
	if tol["remaining"] != float64(3) || tol["budget"] != float64(5) {
		t.Fatalf("unexpected tolerance body: %#v", tol)
	}
	logs.Logf("admin/http: GET /status applied=%v remaining=%v", engine["applied"], tol["remaining"])
}

func TestReadyReflectsTolerance(t *testing.T) {
	testlog.Start(t)

	healthy := New(Config{}, stubStatus{}, stubTolerance{remaining: 1, budget: 5}, nil)
	if rr, _ := get(t, healthy, "/ready"); rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rr.Code)
	}
	exhausted := New(Config{}, stubStatus{}, stubTolerance{remaining: 0, budget: 5}, nil)
	if rr, body := get(t, exhausted, "/ready"); rr.Code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("expected unavailable, got %d %#v", rr.Code, body)
	}
	if rr, body := get(t, healthy, "/health"); rr.Code != http.StatusOK || body["service"] != "republishd" {
		t.Fatalf("unexpected health: %d %#v", rr.Code, body)
	}
}

func TestJournalRoute(t *testing.T) {
	testlog.Start(t)

	disabled := New(Config{}, stubStatus{}, nil, nil)
	if rr, _ := get(t, disabled, "/journal"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without journal, got %d", rr.Code)
	}

	j := &stubJournal{entries: []reconcile.Outcome{{Hostname: "host.example.net", Trigger: "found", Applied: true}}}
	s := New(Config{}, stubStatus{}, nil, j)

	rr, body := get(t, s, "/journal")
	if rr.Code != http.StatusOK || j.lastLimit != defaultJournalLimit {
		t.Fatalf("unexpected response %d limit=%d", rr.Code, j.lastLimit)
	}
	entries := body["outcomes"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["hostname"] != "host.example.net" {
		t.Fatalf("unexpected outcomes: %#v", entries)
	}

	get(t, s, "/journal?limit=5000")
	if j.lastLimit != maxJournalLimit {
		t.Fatalf("expected limit clamp, got %d", j.lastLimit)
	}
	if rr, _ := get(t, s, "/journal?limit=-2"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}

	j.err = errors.New("disk gone")
	if rr, _ := get(t, s, "/journal"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on journal error, got %d", rr.Code)
	}
}

func TestMetricsRouteServes(t *testing.T) {
	testlog.Start(t)

	s := New(Config{}, stubStatus{}, nil, nil)
	rr, _ := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rr.Code)
	}
}
