package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/republish/internal/reconcile"
	"github.com/danmuck/republish/internal/testutil/testlog"
)

func TestRecordPublishesOutcomeJSON(t *testing.T) {
	testlog.Start(t)

	var gotSubject string
	var gotPayload []byte
	p := newPublisher("  ", func(subject string, payload []byte) error {
		gotSubject = subject
		gotPayload = payload
		return nil
	})

	o := reconcile.Outcome{
		Hostname:   "host.example.net",
		Trigger:    "lost",
		Directives: []string{"update delete host.example.net AAAA"},
		Applied:    true,
		At:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Record(context.Background(), o); err != nil {
		t.Fatalf("record: %v", err)
	}
	if gotSubject != DefaultSubject {
		t.Fatalf("unexpected subject %q", gotSubject)
	}
	var decoded reconcile.Outcome
	if err := json.Unmarshal(gotPayload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Hostname != o.Hostname || decoded.Trigger != "lost" || len(decoded.Directives) != 1 {
		t.Fatalf("unexpected payload: %s", gotPayload)
	}
}

func TestRecordPropagatesPublishError(t *testing.T) {
	testlog.Start(t)

	boom := errors.New("boom")
	p := newPublisher("edge.dns", func(string, []byte) error { return boom })
	if p.Subject() != "edge.dns" {
		t.Fatalf("unexpected subject %q", p.Subject())
	}
	if err := p.Record(context.Background(), reconcile.Outcome{}); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}

	unconnected := newPublisher("", nil)
	if err := unconnected.Record(context.Background(), reconcile.Outcome{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	unconnected.Close()
}
