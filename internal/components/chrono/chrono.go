package chrono

import (
	"context"
	"time"
)

// API is the clock everything time-dependent should go through, the export
// poll loop and the export end date depend on it.
type API interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type StandardImpl struct{}

func NewStandardImpl() StandardImpl {
	return StandardImpl{}
}

// Now is always in UTC since export end dates are sent as UTC timestamps.
func (StandardImpl) Now() time.Time {
	return time.Now().UTC()
}

func (StandardImpl) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FakeImpl is a manual clock, Sleep advances the current time instead of
// blocking and records how long it was asked to sleep.
type FakeImpl struct {
	Current time.Time
	Sleeps  []time.Duration
}

func NewFakeImpl(start time.Time) *FakeImpl {
	return &FakeImpl{Current: start}
}

func (f *FakeImpl) Now() time.Time {
	return f.Current
}

func (f *FakeImpl) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Sleeps = append(f.Sleeps, d)
	f.Current = f.Current.Add(d)
	return nil
}
