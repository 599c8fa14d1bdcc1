package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cosmicdocflow/internal/config"
	"cosmicdocflow/internal/extract"
	"cosmicdocflow/internal/llm"
	"cosmicdocflow/internal/session"
	"cosmicdocflow/internal/validate"
)

type fakeGateway struct {
	replies []string
	errs    []error
	calls   int
	seen    [][]llm.Turn
}

func (f *fakeGateway) Generate(_ context.Context, turns []llm.Turn) (string, error) {
	cp := make([]llm.Turn, len(turns))
	copy(cp, turns)
	f.seen = append(f.seen, cp)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return f.replies[i], nil
}

// rejectFirst fails the first n validations with one diagnostic each.
type rejectFirst struct {
	n     int
	calls int
}

func (r *rejectFirst) Validate(string) error {
	r.calls++
	if r.calls <= r.n {
		return &validate.Failure{Diagnostics: []validate.Diagnostic{
			{Rule: "test", Message: fmt.Sprintf("rejected on call %d", r.calls)},
		}}
	}
	return nil
}

func testLoop(gw llm.Gateway, maxAttempts int, onExhausted string) *Loop {
	cfg := config.GenerationConfig{
		MaxAttempts:    maxAttempts,
		OnExhausted:    onExhausted,
		PacingMs:       0,
		HistoryCeiling: 8,
		SessionCache:   4,
	}
	policy := RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	return NewLoop(gw, session.NewRegistry(cfg.SessionCache), cfg, "", policy)
}

func TestLoopValidatesAfterCorrection(t *testing.T) {
	gw := &fakeGateway{replies: []string{"first draft", "second draft"}}
	loop := testLoop(gw, 5, OnExhaustedReturnLast)

	res, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, &rejectFirst{n: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Validated || res.Attempts != 2 || res.Payload != "second draft" {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The second call must carry the rejected draft and a corrective turn.
	second := gw.seen[1]
	if len(second) != 4 {
		t.Fatalf("expected 4 turns on the second call, got %d", len(second))
	}
	if second[2].Role != llm.RoleAssistant || second[2].Content != "first draft" {
		t.Fatalf("rejected draft must stay in the history, got %+v", second[2])
	}
	if second[3].Role != llm.RoleUser || !strings.Contains(second[3].Content, "did not pass validation") {
		t.Fatalf("corrective turn missing, got %+v", second[3])
	}
	if !strings.Contains(second[3].Content, "rejected on call 1") {
		t.Fatalf("corrective turn must carry the diagnostics, got %q", second[3].Content)
	}
}

func TestLoopReturnLastOnExhaustion(t *testing.T) {
	gw := &fakeGateway{replies: []string{"draft one", "draft two"}}
	loop := testLoop(gw, 2, OnExhaustedReturnLast)

	res, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, &rejectFirst{n: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Validated {
		t.Fatal("result must be marked unvalidated")
	}
	if res.Attempts != 2 || res.Payload != "draft two" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoopFailPolicyOnExhaustion(t *testing.T) {
	gw := &fakeGateway{replies: []string{"draft one", "draft two"}}
	loop := testLoop(gw, 2, OnExhaustedFail)

	_, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, &rejectFirst{n: 10})
	if err == nil || !strings.Contains(err.Error(), "no valid payload after 2 attempts") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
}

func TestLoopRetriesTransportFailures(t *testing.T) {
	gw := &fakeGateway{
		errs:    []error{&llm.TransportError{Op: "test", Err: errors.New("connection reset")}, nil},
		replies: []string{"", "fine"},
	}
	loop := testLoop(gw, 5, OnExhaustedReturnLast)

	res, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, validate.Accept{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A transport retry does not consume a semantic attempt.
	if res.Attempts != 1 || gw.calls != 2 {
		t.Fatalf("attempts=%d calls=%d, want 1 and 2", res.Attempts, gw.calls)
	}
}

func TestLoopTransportBudgetExhausted(t *testing.T) {
	te := &llm.TransportError{Op: "test", Err: errors.New("down")}
	gw := &fakeGateway{errs: []error{te, te}, replies: []string{"", ""}}
	loop := testLoop(gw, 5, OnExhaustedReturnLast)

	_, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, validate.Accept{})
	if err == nil || !strings.Contains(err.Error(), "unavailable after 2 tries") {
		t.Fatalf("expected transport exhaustion error, got %v", err)
	}
}

func TestLoopUnclassifiedGatewayErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	gw := &fakeGateway{errs: []error{boom}, replies: []string{""}}
	loop := testLoop(gw, 5, OnExhaustedReturnLast)

	_, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, validate.Accept{})
	if !errors.Is(err, boom) {
		t.Fatalf("unclassified error must pass through, got %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("unclassified errors must not be retried, got %d calls", gw.calls)
	}
}

func TestLoopTreatsExtractionFailureAsSemantic(t *testing.T) {
	gw := &fakeGateway{replies: []string{"   ", "recovered text"}}
	loop := testLoop(gw, 5, OnExhaustedReturnLast)

	res, err := loop.Run(context.Background(), "t", "sys", "usr", extract.FencedText{}, validate.Accept{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Validated || res.Attempts != 2 || res.Payload != "recovered text" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: 10 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	if got := p.Delay(1); got != 10*time.Second {
		t.Fatalf("Delay(1) = %v", got)
	}
	if got := p.Delay(2); got != 20*time.Second {
		t.Fatalf("Delay(2) = %v", got)
	}
	if got := p.Delay(3); got != 30*time.Second {
		t.Fatalf("Delay(3) = %v, want the cap", got)
	}
	if got := p.Delay(4); got != 30*time.Second {
		t.Fatalf("Delay(4) = %v, want the cap", got)
	}
}
