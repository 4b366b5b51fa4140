package backend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/types"
)

// turnRequest is the JSON body posted for one turn.
type turnRequest struct {
	AudioData        string `json:"audioData"`
	InputLanguage    string `json:"inputLanguage"`
	TargetLanguage   string `json:"targetLanguage"`
	ObjectGrabbed    string `json:"object_grabbed"`
	HappinessScore   int    `json:"happiness_score"`
	NegotiationState string `json:"negotiation_state"`
}

// turnResponse is the JSON body returned for one turn. Every field may be
// missing or null.
type turnResponse struct {
	Reply                 *string  `json:"reply"`
	AudioReply            *string  `json:"audioReply"`
	NegotiationState      *string  `json:"negotiation_state"`
	HappinessScore        *float64 `json:"happiness_score"`
	SuggestedUserResponse *string  `json:"suggested_user_response"`
}

func newTurnRequest(u audio.Utterance, snap types.Snapshot) (turnRequest, error) {
	wav, err := audio.EncodeWAV(u)
	if err != nil {
		return turnRequest{}, err
	}
	return turnRequest{
		AudioData:        base64.StdEncoding.EncodeToString(wav),
		InputLanguage:    snap.InputLanguage,
		TargetLanguage:   snap.TargetLanguage,
		ObjectGrabbed:    snap.SelectedContext,
		HappinessScore:   snap.HappinessScore,
		NegotiationState: snap.NegotiationState,
	}, nil
}

// parseTurnResponse decodes a 2xx body. Reply audio that is not valid base64
// or not a readable WAV is dropped with a warning; the rest of the response
// is still used.
func parseTurnResponse(body []byte, log *slog.Logger) (types.TurnResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.TurnResponse{}, &ProtocolError{Reason: "body is not a JSON object"}
	}
	var wire turnResponse
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return types.TurnResponse{}, &ProtocolError{Reason: "decode body", Err: err}
	}

	resp := types.TurnResponse{
		ReplyText:         deref(wire.Reply),
		NegotiationState:  deref(wire.NegotiationState),
		SuggestedResponse: deref(wire.SuggestedUserResponse),
	}
	if wire.HappinessScore != nil {
		score := *wire.HappinessScore
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return types.TurnResponse{}, &ProtocolError{Reason: "happiness_score is not a finite number"}
		}
		resp.HappinessScore = int(math.Trunc(max(min(score, math.MaxInt32), math.MinInt32)))
	}

	if encoded := deref(wire.AudioReply); encoded != "" {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			log.Warn("dropping reply audio that is not base64", "err", err, "len", len(encoded))
		} else if u, err := audio.DecodeWAV(raw); err != nil {
			log.Warn("dropping unreadable reply audio", "err", err, "bytes", len(raw))
		} else {
			resp.ReplyAudio = &u
		}
	}
	return resp, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
