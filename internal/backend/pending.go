package backend

import (
	"context"

	"github.com/samvad-xr/samvad/pkg/types"
)

// Pending is the handle for one in-flight turn returned by
// [Client.SendTurn]. It completes exactly once.
type Pending struct {
	// TurnID identifies the turn in logs, spans and the X-Turn-ID header.
	TurnID string

	done chan struct{}
	resp types.TurnResponse
	err  error
}

func newPending(id string) *Pending {
	return &Pending{TurnID: id, done: make(chan struct{})}
}

func (p *Pending) complete(resp types.TurnResponse, err error) {
	p.resp = resp
	p.err = err
	close(p.done)
}

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the turn completes or ctx is done. Giving up on ctx does
// not abort the exchange; it keeps running until the client timeout.
func (p *Pending) Wait(ctx context.Context) (types.TurnResponse, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return types.TurnResponse{}, ctx.Err()
	}
}

// Result returns the outcome without blocking, or [ErrNotDone].
func (p *Pending) Result() (types.TurnResponse, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	default:
		return types.TurnResponse{}, ErrNotDone
	}
}
