// Package conversation holds the mutable state of one conversation: the
// backend's negotiation phase, the happiness score, the object the user is
// holding and the language pair.
//
// A [State] is owned by the turn orchestrator and passed by reference to
// whoever needs it. Requests read it through [State.Snapshot]; only
// [State.ApplyResponse] and the UI setters write it.
package conversation

import (
	"fmt"
	"sync"

	"github.com/samvad-xr/samvad/pkg/types"
)

// Defaults for a fresh conversation.
const (
	DefaultNegotiationState = "INITIAL"
	DefaultHappinessScore   = 50
	DefaultInputLanguage    = "en"
	DefaultTargetLanguage   = "hi"
)

// State is safe for concurrent use.
type State struct {
	mu               sync.RWMutex
	negotiationState string
	happinessScore   int
	selectedContext  string
	inputLanguage    string
	targetLanguage   string
}

// Option configures a [State] at construction.
type Option func(*State)

// WithLanguages overrides the default language pair.
func WithLanguages(input, target string) Option {
	return func(s *State) {
		s.inputLanguage = input
		s.targetLanguage = target
	}
}

// NewState returns a [State] with default values.
func NewState(opts ...Option) *State {
	s := &State{}
	s.reset()
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns an immutable copy of the current state.
func (s *State) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Snapshot{
		InputLanguage:    s.inputLanguage,
		TargetLanguage:   s.targetLanguage,
		SelectedContext:  s.selectedContext,
		HappinessScore:   s.happinessScore,
		NegotiationState: s.negotiationState,
	}
}

// ApplyResponse folds a backend response into the state. The happiness score
// is always overwritten (clamped to 0–100); the negotiation state only when
// the response carries one. Context and languages are left alone.
func (s *State) ApplyResponse(resp types.TurnResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.happinessScore = ClampHappiness(resp.HappinessScore)
	if resp.NegotiationState != "" {
		s.negotiationState = resp.NegotiationState
	}
}

// SetLanguages sets the language pair. Both codes must be non-empty.
func (s *State) SetLanguages(input, target string) error {
	if input == "" || target == "" {
		return fmt.Errorf("conversation: language codes must be non-empty (input %q, target %q)", input, target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputLanguage = input
	s.targetLanguage = target
	return nil
}

// SelectContext records the object the user picked up.
func (s *State) SelectContext(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedContext = name
}

// ClearContext forgets the selected object.
func (s *State) ClearContext() {
	s.SelectContext("")
}

// Reset restores every field to its default. It is only called on an
// explicit request from the operator, never as a side effect of a turn.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *State) reset() {
	s.negotiationState = DefaultNegotiationState
	s.happinessScore = DefaultHappinessScore
	s.selectedContext = ""
	s.inputLanguage = DefaultInputLanguage
	s.targetLanguage = DefaultTargetLanguage
}

// ClampHappiness limits a score to 0–100.
func ClampHappiness(score int) int {
	return min(max(score, 0), 100)
}

// HappinessFraction maps a score to the 0–1 range shown on the slider.
func HappinessFraction(score int) float64 {
	return float64(ClampHappiness(score)) / 100
}
