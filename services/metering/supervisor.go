package metering

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"energymon-go/services/persist"
	"energymon-go/types"
)

// Run loads the stored accumulator, waits for the first configuration and
// then runs sessions until ctx ends. A failed session is retried after
// RestartBackoff; no error is ever treated as fatal. Run returns ctx.Err().
func (e *Engine) Run(ctx context.Context, in Inputs) error {
	e.loadAccumulator()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case cfg, ok := <-in.Config:
		if ok {
			e.applyConfig(cfg)
		}
	}

	op := func() error {
		err := e.session(ctx, in)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.New("session ended")
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		e.setState(types.MeterFaulted, err)
		e.Log.Warn("stpm session failed, restarting", "err", err, "backoff", wait)
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(RestartBackoff), ctx)
	return backoff.RetryNotify(op, b, notify)
}

func (e *Engine) loadAccumulator() {
	if e.store == nil {
		return
	}
	acc, err := e.store.ReadAccumulator()
	switch {
	case err == nil:
		e.energy = acc
		e.Log.Info("accumulator restored", "ch1", acc[0], "ch2", acc[1])
	case errors.Is(err, persist.ErrNotFound):
		e.Log.Info("no stored accumulator")
	default:
		e.Log.Warn("accumulator read failed", "err", err)
	}
}
