package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/registry"
)

// fakeWriter records write-back calls and returns a scripted error.
type fakeWriter struct {
	calls    int
	lastSvc  string
	lastSet  []domain.Backend
	scripted error
}

func (f *fakeWriter) UpdateTraffic(_ context.Context, service string, backends []domain.Backend) error {
	f.calls++
	f.lastSvc = service
	f.lastSet = backends
	return f.scripted
}

func newTestEditor(writer TrafficWriter) (*Editor, *registry.Registry) {
	reg := registry.New()
	reg.ApplyFull([]domain.ServiceRecord{{
		Service: "svc-a",
		Status:  domain.StatusOnline,
		Backends: []domain.Backend{
			{ID: "b1", Namespace: "ns", Name: "b1", Ratio: 60},
			{ID: "b2", Namespace: "ns", Name: "b2", Ratio: 40},
		},
		UpdatedAt: "t0",
	}})
	return New(reg, writer, logger.New("error", false)), reg
}

func TestOpenUnknownService(t *testing.T) {
	ed, _ := newTestEditor(&fakeWriter{})
	if _, err := ed.Open("nope"); err == nil {
		t.Error("Open() on unknown service should fail")
	}
}

func TestWorkingCopyDoesNotAliasRegistry(t *testing.T) {
	ed, reg := newTestEditor(&fakeWriter{})

	sess, err := ed.Open("svc-a")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := sess.SetRatio("b1", 5); err != nil {
		t.Fatalf("SetRatio() failed: %v", err)
	}

	rec, _ := reg.Get("svc-a")
	if rec.Backends[0].Ratio != 60 {
		t.Errorf("editing the working copy mutated the registry: ratio = %d", rec.Backends[0].Ratio)
	}
}

func TestSetRatioClamps(t *testing.T) {
	tests := []struct {
		name  string
		input int
		want  int
	}{
		{name: "negative clamps to 0", input: -10, want: 0},
		{name: "above 100 clamps to 100", input: 250, want: 100},
		{name: "in range passes through", input: 42, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed, _ := newTestEditor(&fakeWriter{})
			sess, _ := ed.Open("svc-a")
			if err := sess.SetRatio("b1", tt.input); err != nil {
				t.Fatalf("SetRatio() failed: %v", err)
			}
			if got := sess.Backends()[0].Ratio; got != tt.want {
				t.Errorf("ratio = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetRatioUnknownBackend(t *testing.T) {
	ed, _ := newTestEditor(&fakeWriter{})
	sess, _ := ed.Open("svc-a")

	err := sess.SetRatio("b99", 50)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("SetRatio() on unknown backend = %v, want *ValidationError", err)
	}
}

func TestBalanced(t *testing.T) {
	ed, _ := newTestEditor(&fakeWriter{})
	sess, _ := ed.Open("svc-a")

	if !sess.Balanced() {
		t.Errorf("initial 60/40 split should be balanced, sum = %d", sess.Sum())
	}

	_ = sess.SetRatio("b1", 50) // 50 + 40 = 90
	if sess.Balanced() {
		t.Errorf("90%% split should not be balanced, sum = %d", sess.Sum())
	}
}

func TestSubmitRefusedWhenUnbalanced(t *testing.T) {
	writer := &fakeWriter{}
	ed, _ := newTestEditor(writer)
	sess, _ := ed.Open("svc-a")

	_ = sess.SetRatio("b1", 50)
	_ = sess.SetRatio("b2", 40)

	err := sess.Submit(context.Background())
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Submit() = %v, want *ValidationError", err)
	}
	if writer.calls != 0 {
		t.Errorf("refused submission still made %d write-back calls", writer.calls)
	}
	if sess.State() != SessionOpen {
		t.Error("session should stay open after a refused submission")
	}
}

func TestSubmitSuccess(t *testing.T) {
	writer := &fakeWriter{}
	ed, reg := newTestEditor(writer)
	sess, _ := ed.Open("svc-a")

	_ = sess.SetRatio("b1", 70)
	_ = sess.SetRatio("b2", 30)

	if err := sess.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if writer.calls != 1 {
		t.Fatalf("write-back calls = %d, want 1", writer.calls)
	}
	if writer.lastSvc != "svc-a" {
		t.Errorf("write-back service = %q", writer.lastSvc)
	}
	if writer.lastSet[0].Ratio != 70 || writer.lastSet[1].Ratio != 30 {
		t.Errorf("write-back backends = %+v", writer.lastSet)
	}
	if sess.State() != SessionClosed {
		t.Error("session should close after a successful submission")
	}

	// No optimistic registry update: the authoritative state arrives with
	// the server's next update frame.
	rec, _ := reg.Get("svc-a")
	if rec.Backends[0].Ratio != 60 {
		t.Errorf("Submit() optimistically updated the registry: ratio = %d", rec.Backends[0].Ratio)
	}
}

func TestSubmitFailureKeepsSessionOpen(t *testing.T) {
	writer := &fakeWriter{scripted: errors.New("ratios must sum to 100%")}
	ed, _ := newTestEditor(writer)
	sess, _ := ed.Open("svc-a")

	err := sess.Submit(context.Background())
	if err == nil {
		t.Fatal("Submit() should surface the write-back failure")
	}
	if !errors.Is(err, writer.scripted) {
		t.Errorf("Submit() error %v should wrap the server failure", err)
	}
	if sess.State() != SessionOpen {
		t.Error("session should stay open after a failed write-back, for retry or cancel")
	}

	// Retry path.
	writer.scripted = nil
	if err := sess.Submit(context.Background()); err != nil {
		t.Errorf("retry Submit() failed: %v", err)
	}
	if writer.calls != 2 {
		t.Errorf("write-back calls = %d, want 2", writer.calls)
	}
}

func TestCancelDiscardsSession(t *testing.T) {
	writer := &fakeWriter{}
	ed, _ := newTestEditor(writer)
	sess, _ := ed.Open("svc-a")

	sess.Cancel()
	if sess.State() != SessionClosed {
		t.Error("Cancel() should close the session")
	}
	if err := sess.Submit(context.Background()); err == nil {
		t.Error("Submit() after Cancel() should fail")
	}
	if err := sess.SetRatio("b1", 10); err == nil {
		t.Error("SetRatio() after Cancel() should fail")
	}
	if writer.calls != 0 {
		t.Errorf("cancelled session made %d write-back calls", writer.calls)
	}
}
