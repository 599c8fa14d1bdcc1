package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cosmicdocflow/internal/config"
	"cosmicdocflow/internal/extract"
	"cosmicdocflow/internal/llm"
	"cosmicdocflow/internal/session"
	"cosmicdocflow/internal/validate"
)

// Termination policies for an exhausted attempt budget.
const (
	OnExhaustedReturnLast = "return-last"
	OnExhaustedFail       = "fail"
)

// FatalError marks an unclassified failure that must abort the whole run
// rather than be retried.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Result is the outcome of one validated generation run. Validated is false
// only under the return-last policy, when the budget ran out and the best
// available payload is handed back anyway.
type Result struct {
	Payload   string
	Validated bool
	Attempts  int
	SessionID string
}

// Loop drives one conversation until the extracted payload passes
// validation or the attempt budget runs out. Transport failures retry on
// their own backoff budget; semantic failures consume attempts and feed the
// diagnostics back as a corrective turn.
type Loop struct {
	gateway     llm.Gateway
	registry    *session.Registry
	transcripts string
	maxAttempts int
	onExhausted string
	pacing      time.Duration
	ceiling     int
	transport   RetryPolicy
}

// NewLoop wires a loop from configuration.
func NewLoop(gw llm.Gateway, reg *session.Registry, cfg config.GenerationConfig, transcriptDir string, transport RetryPolicy) *Loop {
	return &Loop{
		gateway:     gw,
		registry:    reg,
		transcripts: transcriptDir,
		maxAttempts: cfg.MaxAttempts,
		onExhausted: cfg.OnExhausted,
		pacing:      cfg.Pacing(),
		ceiling:     cfg.HistoryCeiling,
		transport:   transport,
	}
}

// Run seeds a session from the prompts and iterates until success or
// exhaustion. The label names the session in transcripts and logs.
func (l *Loop) Run(ctx context.Context, label, system, user string, ex extract.Extractor, val validate.Validator) (*Result, error) {
	sess := session.New(label, l.ceiling, system, user)
	logCtx := slog.With("session", sess.ID, "label", label)
	defer l.finish(sess, logCtx)

	var lastRaw, lastPayload string
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		raw, err := l.send(ctx, sess.Turns())
		if err != nil {
			return nil, err
		}
		sess.Append(llm.RoleAssistant, raw)
		lastRaw = raw

		payload, err := ex.Extract(raw)
		var report string
		if err != nil {
			var xe *extract.ExtractionError
			if !errors.As(err, &xe) {
				return nil, &FatalError{Err: err}
			}
			report = err.Error()
		} else {
			lastPayload = payload
			verr := val.Validate(payload)
			if verr == nil {
				logCtx.Info("generation validated", "attempts", attempt)
				return &Result{Payload: payload, Validated: true, Attempts: attempt, SessionID: sess.ID}, nil
			}
			var failure *validate.Failure
			if !errors.As(verr, &failure) {
				return nil, &FatalError{Err: verr}
			}
			report = failure.Report()
			logCtx.Warn("generation rejected", "attempt", attempt, "findings", len(failure.Diagnostics))
		}

		if attempt < l.maxAttempts {
			sess.Append(llm.RoleUser, correctivePrompt(report))
			if err := sleepCtx(ctx, l.pacing); err != nil {
				return nil, err
			}
		}
	}

	if l.onExhausted == OnExhaustedFail {
		return nil, fmt.Errorf("no valid payload after %d attempts for %s", l.maxAttempts, label)
	}
	payload := lastPayload
	if payload == "" {
		payload = lastRaw
	}
	logCtx.Warn("attempt budget exhausted, returning last payload", "attempts", l.maxAttempts)
	return &Result{Payload: payload, Validated: false, Attempts: l.maxAttempts, SessionID: sess.ID}, nil
}

// send submits the history, retrying transport failures on the backoff
// policy. Any non-transport error passes through untouched.
func (l *Loop) send(ctx context.Context, turns []llm.Turn) (string, error) {
	var lastErr error
	for try := 1; try <= l.transport.MaxAttempts; try++ {
		raw, err := l.gateway.Generate(ctx, turns)
		if err == nil {
			return raw, nil
		}
		var te *llm.TransportError
		if !errors.As(err, &te) {
			return "", err
		}
		lastErr = err
		if try < l.transport.MaxAttempts {
			slog.Warn("generation service unreachable, backing off", "try", try, "error", err)
			if serr := sleepCtx(ctx, l.transport.Delay(try)); serr != nil {
				return "", serr
			}
		}
	}
	return "", fmt.Errorf("generation service unavailable after %d tries: %w", l.transport.MaxAttempts, lastErr)
}

func (l *Loop) finish(sess *session.Session, logCtx *slog.Logger) {
	if l.registry != nil {
		l.registry.Put(sess)
	}
	if l.transcripts != "" {
		if err := sess.DumpTranscript(l.transcripts); err != nil {
			logCtx.Warn("failed to dump session transcript", "error", err)
		}
	}
}

func correctivePrompt(report string) string {
	return "The previous reply did not pass validation. Findings:\n" + report +
		"\n\nRegenerate the complete output and fix every finding. Reply with the corrected content only, nothing else."
}
