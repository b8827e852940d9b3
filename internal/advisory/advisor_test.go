package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/rs/zerolog"
)

// blockingAnalyzer waits for release before answering
type blockingAnalyzer struct {
	release chan struct{}
	text    string
	err     error
	calls   int
}

func newBlockingAnalyzer(text string, err error) *blockingAnalyzer {
	return &blockingAnalyzer{release: make(chan struct{}), text: text, err: err}
}

func (b *blockingAnalyzer) Analyze(ctx context.Context, q Query) (string, error) {
	b.calls++
	select {
	case <-b.release:
		return b.text, b.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// waitSettled polls until the advisor leaves the pending state
func waitSettled(t *testing.T, a *Advisor) models.AdvisoryReport {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r := a.Report(); r.Status == models.AdvisorySettled {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("advisory did not settle")
	return models.AdvisoryReport{}
}

func TestAdvisor_InitialStateIsIdle(t *testing.T) {
	a := NewAdvisor(AnalyzerFunc(func(context.Context, Query) (string, error) { return "", nil }), AdvisorConfig{}, zerolog.Nop())
	defer a.Close()

	if got := a.Report().Status; got != models.AdvisoryIdle {
		t.Errorf("Status = %v, want idle", got)
	}
	if !a.Enabled() {
		t.Error("advisor with analyzer should be enabled")
	}
}

func TestAdvisor_PendingThenSettled(t *testing.T) {
	analyzer := newBlockingAnalyzer("Healthy. Keep fan idle.", nil)
	a := NewAdvisor(analyzer, AdvisorConfig{}, zerolog.Nop())
	defer a.Close()

	var notified models.AdvisoryReport
	done := make(chan struct{})
	a.OnSettled(func(r models.AdvisoryReport) {
		notified = r
		close(done)
	})

	report, err := a.Request(testSnapshot())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if report.Status != models.AdvisoryPending || report.ID == "" {
		t.Fatalf("report = %+v, want pending with ID", report)
	}

	close(analyzer.release)
	got := waitSettled(t, a)

	if got.Text != "Healthy. Keep fan idle." || got.Failed {
		t.Errorf("settled report = %+v", got)
	}
	if got.ID != report.ID {
		t.Errorf("ID changed from %s to %s", report.ID, got.ID)
	}

	<-done
	if notified.ID != report.ID {
		t.Errorf("listener got %+v", notified)
	}
}

func TestAdvisor_SecondRequestWhilePending(t *testing.T) {
	analyzer := newBlockingAnalyzer("ok", nil)
	a := NewAdvisor(analyzer, AdvisorConfig{}, zerolog.Nop())
	defer a.Close()

	first, err := a.Request(testSnapshot())
	if err != nil {
		t.Fatalf("first Request failed: %v", err)
	}

	second, err := a.Request(testSnapshot())
	if !errors.Is(err, ErrRequestPending) {
		t.Fatalf("err = %v, want ErrRequestPending", err)
	}
	if second.ID != first.ID {
		t.Errorf("pending report ID = %s, want %s", second.ID, first.ID)
	}

	close(analyzer.release)
	waitSettled(t, a)

	// Re-request after settling is allowed and gets a new ID.
	third, err := a.Request(testSnapshot())
	if err != nil {
		t.Fatalf("re-request failed: %v", err)
	}
	if third.ID == first.ID {
		t.Error("re-request should get a fresh ID")
	}
	waitSettled(t, a)
}

func TestAdvisor_FailureText(t *testing.T) {
	analyzer := newBlockingAnalyzer("", errors.New("connection refused"))
	close(analyzer.release)
	a := NewAdvisor(analyzer, AdvisorConfig{}, zerolog.Nop())
	defer a.Close()

	if _, err := a.Request(testSnapshot()); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	got := waitSettled(t, a)

	if got.Text != FailureText {
		t.Errorf("Text = %q, want failure text", got.Text)
	}
	if !got.Failed {
		t.Error("Failed should be true")
	}
	if analyzer.calls != 1 {
		t.Errorf("analyzer called %d times, failures must not be retried", analyzer.calls)
	}
}

func TestAdvisor_EmptyResponse(t *testing.T) {
	analyzer := newBlockingAnalyzer("   ", nil)
	close(analyzer.release)
	a := NewAdvisor(analyzer, AdvisorConfig{}, zerolog.Nop())
	defer a.Close()

	a.Request(testSnapshot())
	if got := waitSettled(t, a); got.Text != NoResponseText {
		t.Errorf("Text = %q, want %q", got.Text, NoResponseText)
	}
}

func TestAdvisor_Timeout(t *testing.T) {
	analyzer := newBlockingAnalyzer("late", nil)
	a := NewAdvisor(analyzer, AdvisorConfig{Timeout: 20 * time.Millisecond}, zerolog.Nop())
	defer a.Close()

	a.Request(testSnapshot())
	got := waitSettled(t, a)
	if !got.Failed || got.Text != FailureText {
		t.Errorf("timed out report = %+v", got)
	}
}

func TestAdvisor_Disabled(t *testing.T) {
	a := NewAdvisor(nil, AdvisorConfig{}, zerolog.Nop())
	defer a.Close()

	if a.Enabled() {
		t.Error("nil analyzer should be disabled")
	}
	if _, err := a.Request(testSnapshot()); !errors.Is(err, ErrAdvisoryDisabled) {
		t.Errorf("err = %v, want ErrAdvisoryDisabled", err)
	}
}

func TestAdvisor_CloseDiscardsPending(t *testing.T) {
	analyzer := newBlockingAnalyzer("never shown", nil)
	a := NewAdvisor(analyzer, AdvisorConfig{}, zerolog.Nop())

	settled := false
	a.OnSettled(func(models.AdvisoryReport) { settled = true })

	if _, err := a.Request(testSnapshot()); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	a.Close()

	if settled {
		t.Error("listener called after Close")
	}
	if got := a.Report().Status; got != models.AdvisoryPending {
		t.Errorf("Status = %v, result should be discarded", got)
	}
	if _, err := a.Request(testSnapshot()); !errors.Is(err, ErrAdvisorClosed) {
		t.Errorf("err = %v, want ErrAdvisorClosed", err)
	}
}
