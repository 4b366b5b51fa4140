package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/samvad-xr/samvad/internal/resilience"
	"github.com/samvad-xr/samvad/pkg/audio/capture"
)

// CaptureDevice fails while driver lists no input device.
func CaptureDevice(driver capture.Driver) Checker {
	return Checker{
		Name: "microphone",
		Check: func(ctx context.Context) error {
			devs, err := driver.ListDevices(ctx)
			if err != nil {
				return err
			}
			if len(devs) == 0 {
				return errors.New("no capture device")
			}
			return nil
		},
	}
}

// Breaker fails while cb is open. A nil breaker always passes.
func Breaker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "backend",
		Check: func(context.Context) error {
			if cb == nil {
				return nil
			}
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %s", s)
			}
			return nil
		},
	}
}
