// Package turn runs the voice-turn pipeline: record, send, apply the reply,
// and reveal the suggestion after a quiet period.
//
// The [Orchestrator] is the single owner of a conversation. External triggers
// (the headset's talk and cancel buttons, the operator UI) call
// [Orchestrator.Toggle], [Orchestrator.Cancel] and the selection setters. A
// periodic driver calls [Orchestrator.Tick], or [Orchestrator.Run] does it on
// a ticker. Results reach the user through the [Sinks].
//
// At most one turn is in flight. A failed turn only changes the status label
// and transcript; conversation state and the suggestion timer are untouched.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samvad-xr/samvad/internal/backend"
	"github.com/samvad-xr/samvad/internal/conversation"
	"github.com/samvad-xr/samvad/internal/observe"
	"github.com/samvad-xr/samvad/internal/recording"
	"github.com/samvad-xr/samvad/internal/suggestion"
	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/types"
)

// Status labels shown on the talk button.
const (
	StatusIdle      = "Start"
	StatusRecording = "Recording…"
	StatusSending   = "Sending…"
	StatusCancelled = "Cancelled"
)

// How long a transient label stays before reverting to [StatusIdle].
const (
	CancelLabelDelay = 1500 * time.Millisecond
	StopLabelDelay   = 2 * time.Second
)

// ErrTurnInFlight is returned by [Orchestrator.Send] while the previous turn
// has not completed.
var ErrTurnInFlight = errors.New("turn: a turn is already in flight")

// Backend sends one turn to the conversational backend.
type Backend interface {
	SendTurn(ctx context.Context, u audio.Utterance, snap types.Snapshot) *backend.Pending
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSinks sets the UI collaborators.
func WithSinks(s Sinks) Option {
	return func(o *Orchestrator) { o.sinks = s }
}

// WithCatalog sets the language and object catalog used by the selection
// setters. Default: [conversation.NewCatalog] with built-in lists.
func WithCatalog(c *conversation.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source for label timing and turn durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	session *recording.Session
	backend Backend
	state   *conversation.State
	timer   *suggestion.Timer
	catalog *conversation.Catalog
	metrics *observe.Metrics
	now     func() time.Time
	sinks   Sinks

	// mu serializes sink updates with state changes, so a suggestion revealed
	// by Tick can never be shown after a newer Send has hidden it.
	mu           sync.Mutex
	inFlight     *Turn
	labelResetAt time.Time
}

// New wires an [Orchestrator] over its collaborators.
func New(session *recording.Session, be Backend, state *conversation.State, timer *suggestion.Timer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session: session,
		backend: be,
		state:   state,
		timer:   timer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.sinks = Combine(o.sinks)
	if o.catalog == nil {
		o.catalog = conversation.NewCatalog(nil, nil, nil)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Turn is the handle for one send. Done is closed after the outcome has been
// applied to the conversation and the sinks.
type Turn struct {
	ID string

	done chan struct{}
	resp types.TurnResponse
	err  error
}

// Done is closed once the turn has been fully handled.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Wait blocks until the turn has been handled or ctx is done.
func (t *Turn) Wait(ctx context.Context) (types.TurnResponse, error) {
	select {
	case <-t.done:
		return t.resp, t.err
	case <-ctx.Done():
		return types.TurnResponse{}, ctx.Err()
	}
}

// Toggle starts recording when idle and stops and sends when recording. The
// returned turn is nil unless a send started.
func (o *Orchestrator) Toggle(ctx context.Context) (*Turn, error) {
	switch st := o.session.State(); st {
	case recording.StateIdle:
		return nil, o.StartRecording(ctx)
	case recording.StateRecording:
		return o.StopAndSend(ctx)
	default:
		err := &recording.InvalidStateError{Op: "toggle", State: st}
		o.report("Waiting for reply…", err)
		return nil, err
	}
}

// StartRecording opens the microphone.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	if err := o.session.Start(ctx); err != nil {
		o.metrics.RecordRecording(ctx, "failed", 0)
		msg := "Microphone error: " + err.Error()
		if errors.Is(err, recording.ErrNoCaptureDevice) {
			msg = "No microphone found"
		}
		o.report(msg, err)
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.labelResetAt = time.Time{}
	o.sinks.Status.SetStatus(StatusRecording)
	return nil
}

// StopAndSend stops recording and sends the trimmed utterance.
func (o *Orchestrator) StopAndSend(ctx context.Context) (*Turn, error) {
	u, err := o.session.Stop()
	if err != nil {
		o.metrics.RecordRecording(ctx, "failed", 0)
		o.report("Microphone error: "+err.Error(), err)
		return nil, err
	}
	t, err := o.Send(ctx, u)
	if err != nil {
		o.session.Complete()
		o.report("Waiting for reply…", err)
		return nil, err
	}
	return t, nil
}

// Send starts a turn for u. Any pending suggestion is withdrawn at once.
func (o *Orchestrator) Send(ctx context.Context, u audio.Utterance) (*Turn, error) {
	o.mu.Lock()
	if o.inFlight != nil {
		o.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	start := o.now()
	o.timer.Cancel()
	o.sinks.Suggestion.Hide()
	o.sinks.Status.SetStatus(StatusSending)
	o.labelResetAt = start.Add(StopLabelDelay)

	pending := o.backend.SendTurn(ctx, u, o.state.Snapshot())
	t := &Turn{ID: pending.TurnID, done: make(chan struct{})}
	o.inFlight = t
	o.mu.Unlock()

	o.metrics.RecordRecording(ctx, "sent", u.Duration().Seconds())
	o.metrics.ActiveTurns.Add(ctx, 1)
	observe.Logger(ctx).Info("turn sent",
		"turn_id", t.ID,
		"audio", u.Duration(),
		"sample_rate", u.SampleRate)

	go o.await(context.WithoutCancel(ctx), t, pending, start)
	return t, nil
}

func (o *Orchestrator) await(ctx context.Context, t *Turn, pending *backend.Pending, start time.Time) {
	<-pending.Done()
	resp, err := pending.Result()

	o.mu.Lock()
	if err != nil {
		msg := "Backend error: " + err.Error()
		o.sinks.Status.SetStatus(msg)
		o.sinks.Transcript.SetText(msg)
		o.labelResetAt = time.Time{}
	} else {
		o.apply(ctx, resp)
	}
	o.inFlight = nil
	o.session.Complete()
	elapsed := o.now().Sub(start)
	o.mu.Unlock()

	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.ActiveTurns.Add(ctx, -1)
	o.metrics.RecordTurn(ctx, status, elapsed.Seconds())

	t.resp, t.err = resp, err
	close(t.done)
}

// apply must be called with o.mu held.
func (o *Orchestrator) apply(ctx context.Context, resp types.TurnResponse) {
	o.state.ApplyResponse(resp)
	score := o.state.Snapshot().HappinessScore
	o.metrics.Happiness.Record(ctx, int64(score))

	if resp.ReplyText != "" {
		o.sinks.Transcript.SetText(resp.ReplyText)
	}
	o.sinks.Happiness.SetValue(conversation.HappinessFraction(score))
	if resp.HasReplyAudio() {
		o.sinks.Playback.Play(*resp.ReplyAudio)
	}
	o.timer.Arm(resp.SuggestedResponse)
}

// Cancel discards the recording in progress.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	if err := o.session.Cancel(); err != nil {
		var ise *recording.InvalidStateError
		if errors.As(err, &ise) {
			return err
		}
		o.metrics.RecordRecording(ctx, "failed", 0)
		o.report("Microphone error: "+err.Error(), err)
		return err
	}
	o.metrics.RecordRecording(ctx, "cancelled", 0)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks.Status.SetStatus(StatusCancelled)
	o.labelResetAt = o.now().Add(CancelLabelDelay)
	return nil
}

// Tick reveals a due suggestion and reverts transient status labels.
func (o *Orchestrator) Tick(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if text, ok := o.timer.Tick(now); ok {
		o.sinks.Suggestion.Show(text)
		o.metrics.SuggestionsRevealed.Add(context.Background(), 1)
		slog.Debug("suggestion revealed", "chars", len(text))
	}
	if !o.labelResetAt.IsZero() && !now.Before(o.labelResetAt) {
		o.labelResetAt = time.Time{}
		o.sinks.Status.SetStatus(StatusIdle)
	}
}

// Run calls Tick every interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Tick(o.now())
		}
	}
}

// SelectObject records the object the user picked up and shows it.
func (o *Orchestrator) SelectObject(label string) error {
	name, err := o.catalog.ResolveObject(label)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.SelectContext(name)
	o.sinks.Context.SetContext(conversation.SelectionText(name))
	return nil
}

// ClearObject forgets the selected object.
func (o *Orchestrator) ClearObject() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.ClearContext()
	o.sinks.Context.SetContext("")
}

// SetLanguages sets the language pair from names or codes.
func (o *Orchestrator) SetLanguages(input, target string) error {
	in, err := o.catalog.ResolveLanguage(input)
	if err != nil {
		return err
	}
	out, err := o.catalog.ResolveLanguage(target)
	if err != nil {
		return err
	}
	return o.state.SetLanguages(in, out)
}

// Reset returns the conversation to its defaults and clears the display.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Reset()
	o.timer.Cancel()
	o.sinks.Suggestion.Hide()
	o.sinks.Transcript.SetText("")
	o.sinks.Context.SetContext("")
	o.sinks.Happiness.SetValue(conversation.HappinessFraction(o.state.Snapshot().HappinessScore))
	slog.Info("conversation reset")
}

// Snapshot returns the current conversation state.
func (o *Orchestrator) Snapshot() types.Snapshot {
	return o.state.Snapshot()
}

// RecordingState returns the microphone session's state.
func (o *Orchestrator) RecordingState() recording.State {
	return o.session.State()
}

// InFlight reports whether a turn is waiting on the backend.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight != nil
}

// Close cancels a recording in progress and waits for an in-flight turn to
// be handled, or for ctx to be done.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.session.State() == recording.StateRecording {
		_ = o.session.Cancel()
	}
	o.mu.Lock()
	t := o.inFlight
	o.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("turn: close: %w", ctx.Err())
	}
}

// report shows msg on the status label and logs err.
func (o *Orchestrator) report(msg string, err error) {
	slog.Warn("turn action failed", "status", msg, "err", err)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks.Status.SetStatus(msg)
	o.labelResetAt = time.Time{}
}
