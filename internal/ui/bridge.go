// Package ui connects headset and operator UIs to the turn pipeline over a
// websocket.
//
// The [Bridge] implements every turn sink by broadcasting JSON [Event]s to
// connected clients, and turns client [Command]s into calls on a
// [Controller]. Binary frames from a client carry microphone PCM and are fed
// to the bridge's [Microphone].
package ui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/samvad-xr/samvad/internal/observe"
	"github.com/samvad-xr/samvad/internal/turn"
	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/audio/opus"
	"github.com/samvad-xr/samvad/pkg/types"
)

// Event types sent to clients.
const (
	EventStatus         = "status"
	EventTranscript     = "transcript"
	EventSuggestion     = "suggestion"
	EventSuggestionHide = "suggestion_hidden"
	EventHappiness      = "happiness"
	EventContext        = "context"
	EventAudio          = "audio"
	EventState          = "state"
	EventMicStart       = "mic_start"
	EventMicStop        = "mic_stop"
	EventError          = "error"
)

// Command types accepted from clients.
const (
	CommandToggle    = "toggle"
	CommandCancel    = "cancel"
	CommandSelect    = "select"
	CommandClear     = "clear"
	CommandLanguages = "languages"
	CommandReset     = "reset"
)

// Playback codecs for reply audio.
const (
	CodecWAV  = "wav"
	CodecOpus = "opus"
)

// Event is one message to a UI client. Only the fields relevant to Type are
// set.
type Event struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Value *float64        `json:"value,omitempty"`
	Rate  int             `json:"sampleRate,omitempty"`
	WAV   string          `json:"wav,omitempty"`
	Opus  *opus.Stream    `json:"opus,omitempty"`
	State *types.Snapshot `json:"state,omitempty"`
}

// Command is one message from a UI client.
type Command struct {
	Type   string `json:"type"`
	Object string `json:"object,omitempty"`
	Input  string `json:"input,omitempty"`
	Target string `json:"target,omitempty"`
}

// Controller is the subset of [turn.Orchestrator] driven by client commands.
type Controller interface {
	Toggle(ctx context.Context) (*turn.Turn, error)
	Cancel(ctx context.Context) error
	SelectObject(label string) error
	ClearObject()
	SetLanguages(input, target string) error
	Reset()
	Snapshot() types.Snapshot
}

// Options configures a [Bridge].
type Options struct {
	// OriginPatterns lists allowed Origin hosts for websocket upgrades. Empty
	// allows same-origin only.
	OriginPatterns []string

	// Codec selects how reply audio is sent: [CodecWAV] (default) or
	// [CodecOpus].
	Codec string

	// OpusBitrate is the Opus bitrate when Codec is [CodecOpus].
	OpusBitrate int

	// SendBuffer is the per-client outgoing queue length. A client that falls
	// further behind is disconnected. Default: 64.
	SendBuffer int

	// Metrics receives the connected-client gauge. Default:
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Bridge is safe for concurrent use.
type Bridge struct {
	opts Options
	mic  *Microphone
	enc  *opus.Encoder

	mu         sync.Mutex
	controller Controller
	clients    map[*client]struct{}
	closed     bool
	// last holds the latest event of each replayable type, sent to clients
	// when they connect.
	last map[string]Event
}

type client struct {
	conn *websocket.Conn
	send chan Event
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewBridge returns a bridge with its own [Microphone].
func NewBridge(opts Options) *Bridge {
	if opts.Codec == "" {
		opts.Codec = CodecWAV
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	b := &Bridge{
		opts:    opts,
		mic:     NewMicrophone(),
		enc:     opus.NewEncoder(opts.OpusBitrate),
		clients: make(map[*client]struct{}),
		last:    make(map[string]Event),
	}
	b.mic.onStart = func(rate int) { b.broadcast(Event{Type: EventMicStart, Rate: rate}) }
	b.mic.onStop = func() { b.broadcast(Event{Type: EventMicStop}) }
	return b
}

// Microphone returns the capture driver fed by UI clients.
func (b *Bridge) Microphone() *Microphone { return b.mic }

// Attach sets the controller that receives client commands. Commands that
// arrive before Attach are rejected.
func (b *Bridge) Attach(c Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controller = c
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ─── sinks ───────────────────────────────────────────────────────────────────

// SetText implements [turn.TranscriptSink].
func (b *Bridge) SetText(text string) { b.broadcast(Event{Type: EventTranscript, Text: text}) }

// Show implements [turn.SuggestionSink].
func (b *Bridge) Show(text string) { b.broadcast(Event{Type: EventSuggestion, Text: text}) }

// Hide implements [turn.SuggestionSink].
func (b *Bridge) Hide() { b.broadcast(Event{Type: EventSuggestionHide}) }

// SetValue implements [turn.HappinessSink].
func (b *Bridge) SetValue(v float64) { b.broadcast(Event{Type: EventHappiness, Value: &v}) }

// SetStatus implements [turn.StatusSink].
func (b *Bridge) SetStatus(text string) { b.broadcast(Event{Type: EventStatus, Text: text}) }

// SetContext implements [turn.ContextSink].
func (b *Bridge) SetContext(text string) { b.broadcast(Event{Type: EventContext, Text: text}) }

// Play implements [turn.PlaybackSink]. Encoding runs off the caller's
// goroutine.
func (b *Bridge) Play(u audio.Utterance) {
	go func() {
		ev, err := b.audioEvent(u)
		if err != nil {
			slog.Warn("ui: cannot encode reply audio", "err", err, "codec", b.opts.Codec)
			return
		}
		b.broadcast(ev)
	}()
}

func (b *Bridge) audioEvent(u audio.Utterance) (Event, error) {
	if b.opts.Codec == CodecOpus {
		s, err := b.enc.Encode(u)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventAudio, Opus: &s}, nil
	}
	wav, err := audio.EncodeWAV(u)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventAudio, WAV: base64.StdEncoding.EncodeToString(wav)}, nil
}

// broadcast queues ev for every client and remembers replayable events.
func (b *Bridge) broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Type {
	case EventStatus, EventTranscript, EventHappiness, EventContext:
		b.last[ev.Type] = ev
	case EventSuggestion:
		b.last[EventSuggestion] = ev
	case EventSuggestionHide:
		delete(b.last, EventSuggestion)
	}
	for c := range b.clients {
		select {
		case c.send <- ev:
		default:
			slog.Warn("ui: dropping slow client")
			b.removeLocked(c)
		}
	}
}

// removeLocked must be called with b.mu held.
func (b *Bridge) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	c.close()
	b.mic.detach()
	b.opts.Metrics.UIClients.Add(context.Background(), -1)
}

// ─── websocket ───────────────────────────────────────────────────────────────

// ServeHTTP upgrades the request to a websocket and serves one client until
// it disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.opts.OriginPatterns,
	})
	if err != nil {
		slog.Warn("ui: websocket accept failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(1 << 20)

	c := &client{conn: conn, send: make(chan Event, b.opts.SendBuffer), done: make(chan struct{})}
	if err := b.add(c); err != nil {
		conn.Close(websocket.StatusGoingAway, err.Error())
		return
	}
	log := observe.Logger(r.Context()).With("remote", r.RemoteAddr)
	log.Info("ui client connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go b.writeLoop(ctx, c)

	err = b.readLoop(ctx, c)
	b.mu.Lock()
	b.removeLocked(c)
	b.mu.Unlock()

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		log.Info("ui client disconnected")
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	log.Info("ui client disconnected", "err", err)
	conn.Close(websocket.StatusInternalError, "closing")
}

func (b *Bridge) add(c *client) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("server shutting down")
	}
	b.clients[c] = struct{}{}
	b.mic.attach()
	b.opts.Metrics.UIClients.Add(context.Background(), 1)

	if b.controller != nil {
		snap := b.controller.Snapshot()
		c.send <- Event{Type: EventState, State: &snap}
	}
	for _, typ := range []string{EventStatus, EventHappiness, EventContext, EventTranscript, EventSuggestion} {
		if ev, ok := b.last[typ]; ok {
			select {
			case c.send <- ev:
			default:
			}
		}
	}
	return nil
}

func (b *Bridge) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-c.done:
			_ = c.conn.Close(websocket.StatusGoingAway, "disconnected")
			return
		case <-ctx.Done():
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				b.mu.Lock()
				b.removeLocked(c)
				b.mu.Unlock()
				return
			}
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, c *client) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			b.mic.Feed(data)
			continue
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			b.reply(c, Event{Type: EventError, Text: "invalid command: " + err.Error()})
			continue
		}
		if err := b.dispatch(ctx, cmd); err != nil {
			b.reply(c, Event{Type: EventError, Text: err.Error()})
		}
	}
}

func (b *Bridge) reply(c *client, ev Event) {
	select {
	case c.send <- ev:
	default:
	}
}

func (b *Bridge) dispatch(ctx context.Context, cmd Command) error {
	b.mu.Lock()
	ctrl := b.controller
	b.mu.Unlock()
	if ctrl == nil {
		return errors.New("ui: not ready")
	}

	switch cmd.Type {
	case CommandToggle:
		_, err := ctrl.Toggle(ctx)
		return err
	case CommandCancel:
		return ctrl.Cancel(ctx)
	case CommandSelect:
		return ctrl.SelectObject(cmd.Object)
	case CommandClear:
		ctrl.ClearObject()
		return nil
	case CommandLanguages:
		if err := ctrl.SetLanguages(cmd.Input, cmd.Target); err != nil {
			return err
		}
		snap := ctrl.Snapshot()
		b.broadcast(Event{Type: EventState, State: &snap})
		return nil
	case CommandReset:
		ctrl.Reset()
		snap := ctrl.Snapshot()
		b.broadcast(Event{Type: EventState, State: &snap})
		return nil
	default:
		return fmt.Errorf("ui: unknown command %q", cmd.Type)
	}
}

// Close disconnects every client and rejects new ones.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		b.removeLocked(c)
	}
}

// Ready reports whether the bridge accepts clients. It is used as a
// readiness check.
func (b *Bridge) Ready(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("ui bridge closed")
	}
	return nil
}
