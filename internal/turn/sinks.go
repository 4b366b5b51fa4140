package turn

import "github.com/samvad-xr/samvad/pkg/audio"

// TranscriptSink displays the character's reply text.
type TranscriptSink interface {
	SetText(text string)
}

// PlaybackSink plays the character's spoken reply. Play must not block until
// playback ends.
type PlaybackSink interface {
	Play(u audio.Utterance)
}

// SuggestionSink shows and hides the suggested user reply.
type SuggestionSink interface {
	Show(text string)
	Hide()
}

// HappinessSink displays the happiness score as a 0–1 fraction.
type HappinessSink interface {
	SetValue(v float64)
}

// StatusSink displays the talk button label and error messages.
type StatusSink interface {
	SetStatus(text string)
}

// ContextSink displays the selected object, e.g. "Selected: Tomato".
type ContextSink interface {
	SetContext(text string)
}

// Sinks groups the UI collaborators. Nil fields are ignored. Sink methods are
// called with the orchestrator's lock held: they must return quickly and must
// not call back into the [Orchestrator].
type Sinks struct {
	Transcript TranscriptSink
	Playback   PlaybackSink
	Suggestion SuggestionSink
	Happiness  HappinessSink
	Status     StatusSink
	Context    ContextSink
}

// All builds a [Sinks] whose every field is v. v must implement all six sink
// interfaces.
func All(v interface {
	TranscriptSink
	PlaybackSink
	SuggestionSink
	HappinessSink
	StatusSink
	ContextSink
}) Sinks {
	return Sinks{Transcript: v, Playback: v, Suggestion: v, Happiness: v, Status: v, Context: v}
}

// Combine returns a [Sinks] that forwards every call to each of sinks in
// order.
func Combine(sinks ...Sinks) Sinks {
	m := multi(sinks)
	return All(m)
}

type multi []Sinks

func (m multi) SetText(text string) {
	for _, s := range m {
		if s.Transcript != nil {
			s.Transcript.SetText(text)
		}
	}
}

func (m multi) Play(u audio.Utterance) {
	for _, s := range m {
		if s.Playback != nil {
			s.Playback.Play(u)
		}
	}
}

func (m multi) Show(text string) {
	for _, s := range m {
		if s.Suggestion != nil {
			s.Suggestion.Show(text)
		}
	}
}

func (m multi) Hide() {
	for _, s := range m {
		if s.Suggestion != nil {
			s.Suggestion.Hide()
		}
	}
}

func (m multi) SetValue(v float64) {
	for _, s := range m {
		if s.Happiness != nil {
			s.Happiness.SetValue(v)
		}
	}
}

func (m multi) SetStatus(text string) {
	for _, s := range m {
		if s.Status != nil {
			s.Status.SetStatus(text)
		}
	}
}

func (m multi) SetContext(text string) {
	for _, s := range m {
		if s.Context != nil {
			s.Context.SetContext(text)
		}
	}
}
