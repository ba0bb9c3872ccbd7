package allure

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

// Step runs fn as a step named name under the current test, fixture or step.
// The step is marked with the status derived from the returned error; a
// panic marks it broken and is re-raised once the step is stopped.
func Step(ctx context.Context, r Reporter, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return types.NewArgumentError("step function")
	}
	_, err := StepValue(ctx, r, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// StepValue is Step for functions returning a value
func StepValue[T any](ctx context.Context, r Reporter, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, types.NewArgumentError("reporter")
	}
	if fn == nil {
		return zero, types.NewArgumentError("step function")
	}
	if err := r.StartStep(ctx, types.NewStepResult(name)); err != nil {
		return zero, err
	}

	value, fnErr := runGuarded(ctx, fn, func(p any) {
		_ = stopStep(ctx, r, types.StatusBroken, fmt.Errorf("panic: %v", p))
	})
	if err := stopStep(ctx, r, r.StatusFor(fnErr), fnErr); err != nil {
		return value, errors.Join(fnErr, err)
	}
	return value, fnErr
}

func stopStep(ctx context.Context, r Reporter, status types.Status, err error) error {
	if uerr := r.UpdateStep(ctx, func(s *types.StepResult) { s.SetStatus(status, err) }); uerr != nil {
		return uerr
	}
	return r.StopStep(ctx)
}

// Before runs fn as a before fixture of the current container
func Before(ctx context.Context, r Reporter, name string, fn func(ctx context.Context) error) error {
	if r == nil {
		return types.NewArgumentError("reporter")
	}
	return runFixture(ctx, r, r.StartBeforeFixture, name, fn)
}

// After runs fn as an after fixture of the current container
func After(ctx context.Context, r Reporter, name string, fn func(ctx context.Context) error) error {
	if r == nil {
		return types.NewArgumentError("reporter")
	}
	return runFixture(ctx, r, r.StartAfterFixture, name, fn)
}

func runFixture(ctx context.Context, r Reporter, start func(context.Context, *types.FixtureResult) error, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return types.NewArgumentError("fixture function")
	}
	if err := start(ctx, types.NewFixtureResult(name)); err != nil {
		return err
	}

	_, fnErr := runGuarded(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, func(p any) {
		_ = stopFixture(ctx, r, types.StatusBroken, fmt.Errorf("panic: %v", p))
	})
	if err := stopFixture(ctx, r, r.StatusFor(fnErr), fnErr); err != nil {
		return errors.Join(fnErr, err)
	}
	return fnErr
}

func stopFixture(ctx context.Context, r Reporter, status types.Status, err error) error {
	if uerr := r.UpdateFixture(ctx, func(f *types.FixtureResult) { f.SetStatus(status, err) }); uerr != nil {
		return uerr
	}
	return r.StopFixture(ctx)
}

// runGuarded calls fn, handing any panic to onPanic before re-raising it
func runGuarded[T any](ctx context.Context, fn func(ctx context.Context) (T, error), onPanic func(any)) (T, error) {
	defer func() {
		if p := recover(); p != nil {
			onPanic(p)
			panic(p)
		}
	}()
	return fn(ctx)
}
