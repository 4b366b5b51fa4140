package ui

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/samvad-xr/samvad/internal/observe"
	"github.com/samvad-xr/samvad/internal/turn"
	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/types"
)

// fakeController records the commands it receives.
type fakeController struct {
	mu        sync.Mutex
	toggles   int
	cancels   int
	selected  string
	clears    int
	languages [2]string
	resets    int
	toggleErr error
}

func (f *fakeController) Toggle(context.Context) (*turn.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return nil, f.toggleErr
}

func (f *fakeController) Cancel(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeController) SelectObject(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = label
	return nil
}

func (f *fakeController) ClearObject() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

func (f *fakeController) SetLanguages(input, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = [2]string{input, target}
	return nil
}

func (f *fakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeController) Snapshot() types.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.Snapshot{
		InputLanguage:    "en",
		TargetLanguage:   "hi",
		HappinessScore:   50,
		NegotiationState: "INITIAL",
		SelectedContext:  f.selected,
	}
}

func newTestBridge(t *testing.T, opts Options) (*Bridge, string) {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts.Metrics = m
	b := NewBridge(opts)
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

// readUntil discards events until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Event {
	t.Helper()
	for range 20 {
		ev := readEvent(t, conn)
		if ev.Type == typ {
			return ev
		}
	}
	t.Fatalf("no %q event received", typ)
	return Event{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridge_ConnectSendsStateAndListsMicrophone(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{})
	b.Attach(&fakeController{})
	conn := dial(t, url)

	ev := readEvent(t, conn)
	if ev.Type != EventState || ev.State == nil {
		t.Fatalf("first event = %+v, want state", ev)
	}
	if ev.State.TargetLanguage != "hi" {
		t.Errorf("state target = %q, want hi", ev.State.TargetLanguage)
	}

	devs, _ := b.Microphone().ListDevices(context.Background())
	if len(devs) != 1 {
		t.Errorf("devices = %v, want the headset microphone", devs)
	}
	if got := b.Clients(); got != 1 {
		t.Errorf("Clients = %d, want 1", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, "client removal", func() bool { return b.Clients() == 0 })
	devs, _ = b.Microphone().ListDevices(context.Background())
	if len(devs) != 0 {
		t.Errorf("devices after disconnect = %v, want none", devs)
	}
}

func TestBridge_BroadcastsSinkCalls(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{})
	conn := dial(t, url)
	waitFor(t, "client", func() bool { return b.Clients() == 1 })

	b.SetStatus("Sending…")
	b.SetText("hola")
	b.SetValue(0.65)
	b.SetContext("Selected: Tomato")
	b.Show("Try asking for a discount")
	b.Hide()

	want := []Event{
		{Type: EventStatus, Text: "Sending…"},
		{Type: EventTranscript, Text: "hola"},
		{Type: EventHappiness},
		{Type: EventContext, Text: "Selected: Tomato"},
		{Type: EventSuggestion, Text: "Try asking for a discount"},
		{Type: EventSuggestionHide},
	}
	for i, w := range want {
		got := readEvent(t, conn)
		if got.Type != w.Type || got.Text != w.Text {
			t.Errorf("event %d = %s %q, want %s %q", i, got.Type, got.Text, w.Type, w.Text)
		}
		if w.Type == EventHappiness && (got.Value == nil || *got.Value != 0.65) {
			t.Errorf("happiness value = %v, want 0.65", got.Value)
		}
	}
}

func TestBridge_ReplaysLastEventsToNewClient(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{})
	b.SetStatus("Start")
	b.SetValue(0.4)
	b.Show("stale")
	b.Hide()
	b.Show("fresh")

	conn := dial(t, url)
	seen := map[string]Event{}
	for range 3 {
		ev := readEvent(t, conn)
		seen[ev.Type] = ev
	}
	if seen[EventStatus].Text != "Start" {
		t.Errorf("replayed status = %q, want Start", seen[EventStatus].Text)
	}
	if seen[EventSuggestion].Text != "fresh" {
		t.Errorf("replayed suggestion = %q, want fresh", seen[EventSuggestion].Text)
	}
	if _, ok := seen[EventHappiness]; !ok {
		t.Error("happiness not replayed")
	}
}

func TestBridge_HiddenSuggestionNotReplayed(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{})
	b.Show("old")
	b.Hide()
	b.SetStatus("Start")

	conn := dial(t, url)
	ev := readEvent(t, conn)
	if ev.Type != EventStatus {
		t.Errorf("first replayed event = %s, want status only", ev.Type)
	}
}

func TestBridge_Commands(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	b, url := newTestBridge(t, Options{})
	b.Attach(ctrl)
	conn := dial(t, url)
	readUntil(t, conn, EventState)

	ctx := context.Background()
	cmds := []Command{
		{Type: CommandToggle},
		{Type: CommandCancel},
		{Type: CommandSelect, Object: "Tomato"},
		{Type: CommandClear},
		{Type: CommandLanguages, Input: "en", Target: "ta"},
	}
	for _, c := range cmds {
		if err := wsjson.Write(ctx, conn, c); err != nil {
			t.Fatalf("write %s: %v", c.Type, err)
		}
	}
	// languages answers with a state broadcast once every earlier command ran.
	readUntil(t, conn, EventState)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.toggles != 1 || ctrl.cancels != 1 || ctrl.clears != 1 {
		t.Errorf("toggles=%d cancels=%d clears=%d, want 1 each", ctrl.toggles, ctrl.cancels, ctrl.clears)
	}
	if ctrl.selected != "Tomato" {
		t.Errorf("selected = %q, want Tomato", ctrl.selected)
	}
	if ctrl.languages != [2]string{"en", "ta"} {
		t.Errorf("languages = %v, want [en ta]", ctrl.languages)
	}
}

func TestBridge_CommandErrorsReported(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{toggleErr: errors.New("recording: toggle in state Sending")}
	b, url := newTestBridge(t, Options{})
	b.Attach(ctrl)
	conn := dial(t, url)
	readUntil(t, conn, EventState)

	ctx := context.Background()
	if err := wsjson.Write(ctx, conn, Command{Type: CommandToggle}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readUntil(t, conn, EventError)
	if !strings.Contains(ev.Text, "Sending") {
		t.Errorf("error text = %q, want toggle error", ev.Text)
	}

	if err := wsjson.Write(ctx, conn, Command{Type: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev = readUntil(t, conn, EventError)
	if !strings.Contains(ev.Text, "unknown command") {
		t.Errorf("error text = %q, want unknown command", ev.Text)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev = readUntil(t, conn, EventError)
	if !strings.HasPrefix(ev.Text, "invalid command") {
		t.Errorf("error text = %q, want invalid command", ev.Text)
	}
}

func TestBridge_CommandBeforeAttach(t *testing.T) {
	t.Parallel()

	_, url := newTestBridge(t, Options{})
	conn := dial(t, url)
	if err := wsjson.Write(context.Background(), conn, Command{Type: CommandReset}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readUntil(t, conn, EventError)
	if ev.Text != "ui: not ready" {
		t.Errorf("error = %q, want ui: not ready", ev.Text)
	}
}

func TestBridge_MicrophoneStreaming(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{})
	conn := dial(t, url)
	waitFor(t, "client", func() bool { return b.Clients() == 1 })

	mic := b.Microphone()
	h, err := mic.StartCapture(MicrophoneDevice, 1, 16000)
	if err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	ev := readUntil(t, conn, EventMicStart)
	if ev.Rate != 16000 {
		t.Errorf("mic_start rate = %d, want 16000", ev.Rate)
	}

	if err := conn.Write(context.Background(), websocket.MessageBinary, pcmBytes(100, 200, 300)); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
	waitFor(t, "fed samples", func() bool {
		pos, _ := mic.ReadPosition(h)
		return pos == 3
	})

	if _, err := mic.StopCapture(h); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	readUntil(t, conn, EventMicStop)
}

func TestBridge_PlaySendsWAV(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{Codec: CodecWAV})
	conn := dial(t, url)
	waitFor(t, "client", func() bool { return b.Clients() == 1 })

	u := audio.Utterance{Samples: make([]int16, 1600), Channels: 1, SampleRate: 16000}
	b.Play(u)

	ev := readUntil(t, conn, EventAudio)
	raw, err := base64.StdEncoding.DecodeString(ev.WAV)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	got, err := audio.DecodeWAV(raw)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.Frames() != 1600 || got.SampleRate != 16000 {
		t.Errorf("audio = %d frames at %d Hz, want 1600 at 16000", got.Frames(), got.SampleRate)
	}
}

func TestBridge_CloseRejectsClients(t *testing.T) {
	t.Parallel()

	b, url := newTestBridge(t, Options{})
	conn := dial(t, url)
	waitFor(t, "client", func() bool { return b.Clients() == 1 })

	b.Close()
	if err := b.Ready(context.Background()); err == nil {
		t.Error("Ready after Close = nil, want error")
	}
	if got := b.Clients(); got != 0 {
		t.Errorf("Clients after Close = %d, want 0", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("Read after Close = nil error, want closed connection")
	}
}
