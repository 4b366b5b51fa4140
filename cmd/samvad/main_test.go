package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeApp struct {
	calls int
	err   error
}

func (f *fakeApp) Shutdown(ctx context.Context) error {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("shutdown context has no deadline")
	}
	return f.err
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		runErr      error
		shutdownErr error
		telemetry   error
		wantCode    int
	}{
		{"clean", nil, nil, nil, 0},
		{"run failed", errors.New("listen tcp :8080: address already in use"), nil, nil, 1},
		{"app shutdown failed", nil, errors.New("orchestrator: close"), nil, 1},
		{"telemetry failure is not fatal", nil, nil, errors.New("exporter"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := &fakeApp{err: tt.shutdownErr}
			telemetryCalls := 0
			flush := func(context.Context) error {
				telemetryCalls++
				return tt.telemetry
			}

			if got := shutdown(app, flush, tt.runErr, time.Second); got != tt.wantCode {
				t.Errorf("shutdown() = %d, want %d", got, tt.wantCode)
			}
			if app.calls != 1 {
				t.Errorf("application Shutdown calls = %d, want 1", app.calls)
			}
			if telemetryCalls != 1 {
				t.Errorf("telemetry shutdown calls = %d, want 1", telemetryCalls)
			}
		})
	}
}
