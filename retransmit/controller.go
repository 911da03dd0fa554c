package retransmit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rerrors"
	"github.com/jfortiz/radiuscore/rlog"
	"github.com/jfortiz/radiuscore/rmetrics"
	"github.com/jfortiz/radiuscore/rpacket"
	"github.com/jfortiz/radiuscore/transport"
)

// Controller drives one Transport through the attempt loop a Strategy
// describes, generalizing the retry shape of the teacher's
// router.RouteRadiusRequest (minus its multi-server quarantine
// bookkeeping, which has no meaning for a single configured endpoint).
type Controller struct {
	Transport transport.Transport
	Strategy  Strategy
	IDs       *IdentifierAllocator
}

// NewController builds a Controller with DefaultStrategy and a fresh
// IdentifierAllocator, for callers that do not need to customize
// either.
func NewController(t transport.Transport) *Controller {
	return &Controller{
		Transport: t,
		Strategy:  DefaultStrategy,
		IDs:       NewIdentifierAllocator(),
	}
}

// Send runs req through every attempt the Strategy allows, returning
// the first successful response or a *rerrors.RetriesExhaustedError
// once attempts are exhausted. The whole call is additionally bounded
// by TotalDeadline(c.Strategy): a caller-supplied ctx with its own
// deadline is honored too, whichever fires first.
func (c *Controller) Send(ctx context.Context, req *rpacket.Packet, dict rdict.Dictionary) (*rpacket.Packet, error) {
	id, err := c.IDs.Acquire()
	if err != nil {
		return nil, err
	}
	defer c.IDs.Release(id)

	deadlineCtx, cancel := context.WithTimeout(ctx, TotalDeadline(c.Strategy))
	defer cancel()

	endpoint := c.Transport.Endpoint()

	var lastErr error
	attempts := c.Strategy.MaxAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			rmetrics.RecordRetry(endpoint)
			rlog.L().Debugw("retrying request", "endpoint", endpoint, "identifier", id, "attempt", attempt+1)
		}

		attemptCtx, attemptCancel := context.WithTimeout(deadlineCtx, c.Strategy.TimeoutForAttempt(attempt))
		resp, err := c.Transport.Send(attemptCtx, id, req, dict)
		attemptCancel()

		if err == nil {
			return resp, nil
		}

		if deadlineCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", rerrors.ErrDeadlineExceeded, deadlineCtx.Err())
		}

		classified := classify(err)
		lastErr = classified

		if !rerrors.IsTransient(classified) {
			return nil, classified
		}

		if errors.Is(classified, rerrors.ErrAttemptTimeout) {
			rmetrics.RecordTimeout(endpoint)
		}
	}

	return nil, &rerrors.RetriesExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// classify maps a per-attempt context deadline into
// rerrors.ErrAttemptTimeout, the transient failure class a retry loop
// is allowed to retry, per spec.md §4.5.2.
func classify(err error) error {
	if err == context.DeadlineExceeded {
		return rerrors.ErrAttemptTimeout
	}
	return err
}
