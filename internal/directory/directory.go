package directory

import (
	"context"
	"errors"
	"log"
	"time"

	"channel-clock/internal/models"
)

var (
	// ErrForbidden means the bot lost the right to rename the entity.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the entity does not exist or is not visible to the bot.
	ErrNotFound = errors.New("entity not found")
)

//go:generate mockgen -source=directory.go -destination=mocks/mocks.go -package=mocks Directory

// Directory is the external service holding the channel names.
type Directory interface {
	// Label returns the label currently shown for the entity.
	Label(ctx context.Context, entityID string) (string, error)
	// Rename replaces the entity's label.
	Rename(ctx context.Context, entityID, label string) error
}

// Outcome is the result of one publish attempt.
type Outcome int

const (
	Unchanged Outcome = iota
	Written
	Forbidden
	NotFound
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Written:
		return "written"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// Result describes a publish attempt for one region.
type Result struct {
	RegionID string
	Label    string
	Outcome  Outcome
	Err      error
}

// Publisher writes labels to a Directory, skipping writes that would not
// change anything.
type Publisher struct {
	dir     Directory
	timeout time.Duration
}

func NewPublisher(dir Directory, timeoutSec int) *Publisher {
	return &Publisher{
		dir:     dir,
		timeout: time.Duration(timeoutSec) * time.Second,
	}
}

// Publish makes region's entity show label. published maps region ids to the
// last label known to be displayed; it is updated on success and owned by the
// caller. Each directory call gets its own timeout and is not cancelled by ctx,
// so shutdown lets an in-flight rename finish.
func (p *Publisher) Publish(ctx context.Context, published map[string]string, region *models.Region, label string) Result {
	res := Result{RegionID: region.ID, Label: label}
	if last, ok := published[region.ID]; ok && last == label {
		res.Outcome = Unchanged
		return res
	}

	current, err := p.currentLabel(ctx, region.EntityID)
	switch {
	case err == nil && current == label:
		published[region.ID] = label
		res.Outcome = Unchanged
		return res
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		res.Outcome, res.Err = classify(err), err
		return res
	case err != nil:
		log.Printf("[publish] %s: could not read current label, renaming anyway: %v", region.ID, err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.dir.Rename(callCtx, region.EntityID, label); err != nil {
		res.Outcome, res.Err = classify(err), err
		return res
	}
	published[region.ID] = label
	res.Outcome = Written
	return res
}

func (p *Publisher) currentLabel(ctx context.Context, entityID string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.dir.Label(callCtx, entityID)
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return Written
	case errors.Is(err, ErrForbidden):
		return Forbidden
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return Transient
	}
}

// call runs fn in a goroutine so a client without context support still
// honours ctx. fn keeps running in the background after ctx expires.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
