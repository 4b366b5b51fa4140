// Package types defines the data shared between the conversation state, the
// backend client and the turn orchestrator.
//
// Both types are plain values. A [Snapshot] is taken once per send and is
// never mutated afterwards; a [TurnResponse] is produced by the backend client
// and consumed exactly once by the orchestrator.
package types

import "github.com/samvad-xr/samvad/pkg/audio"

// Snapshot is an immutable copy of the conversation state sent along with a
// turn.
type Snapshot struct {
	// InputLanguage is the language code the user speaks (e.g. "en").
	InputLanguage string `json:"input_language"`

	// TargetLanguage is the language code the character replies in (e.g. "hi").
	TargetLanguage string `json:"target_language"`

	// SelectedContext names the object the user is holding, or "".
	SelectedContext string `json:"selected_context"`

	// HappinessScore is the current rapport gauge, 0–100.
	HappinessScore int `json:"happiness_score"`

	// NegotiationState is the backend's opaque conversational phase.
	NegotiationState string `json:"negotiation_state"`
}

// TurnResponse is the parsed reply for one turn. Empty strings and a nil
// ReplyAudio mean the backend sent no value for that field.
type TurnResponse struct {
	// ReplyText is the character's reply as text.
	ReplyText string

	// ReplyAudio is the decoded spoken reply.
	ReplyAudio *audio.Utterance

	// NegotiationState replaces the current state when non-empty.
	NegotiationState string

	// HappinessScore always replaces the current score. A missing field on
	// the wire decodes to 0.
	HappinessScore int

	// SuggestedResponse is withheld and shown after a quiet period.
	SuggestedResponse string
}

// HasReplyAudio reports whether the response carries playable audio.
func (r TurnResponse) HasReplyAudio() bool {
	return r.ReplyAudio != nil && len(r.ReplyAudio.Samples) > 0
}
