package staking

import (
	"context"
	"errors"
	"fmt"
)

// effect is an external side effect together with the action that undoes
// it. Effects run in order; on failure the completed ones are compensated in
// reverse order.
type effect struct {
	name       string
	apply      func(context.Context) error
	compensate func(context.Context) error
}

// runEffects executes effects in sequence. The returned error wraps the first
// failure. compensateErr is non-nil when at least one compensation failed.
func runEffects(ctx context.Context, effects []effect) (err error, compensateErr error) {
	for i, eff := range effects {
		if applyErr := eff.apply(ctx); applyErr != nil {
			err = fmt.Errorf("%s: %w", eff.name, applyErr)
			var failures []error
			for j := i - 1; j >= 0; j-- {
				if effects[j].compensate == nil {
					continue
				}
				if cerr := effects[j].compensate(ctx); cerr != nil {
					failures = append(failures, fmt.Errorf("compensate %s: %w", effects[j].name, cerr))
				}
			}
			return err, errors.Join(failures...)
		}
	}
	return nil, nil
}
