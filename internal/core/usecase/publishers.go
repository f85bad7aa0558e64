package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
)

// NopPublisher drops snapshots.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Snapshot) error { return nil }

// PublisherGroup fans a snapshot out to every member. A failing member does
// not stop delivery to the others.
type PublisherGroup []ports.SnapshotPublisher

func (g PublisherGroup) Publish(ctx context.Context, snap domain.Snapshot) error {
	var errs []error
	for _, p := range g {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to ports.SnapshotPublisher.
type PublisherFunc func(ctx context.Context, snap domain.Snapshot) error

func (f PublisherFunc) Publish(ctx context.Context, snap domain.Snapshot) error {
	return f(ctx, snap)
}

type nopObserver struct{}

func (nopObserver) StartRun(domain.RunKind)                      {}
func (nopObserver) ObserveItem(domain.ItemStatus, time.Duration) {}
func (nopObserver) FinishRun(domain.RunResult, time.Duration)    {}
