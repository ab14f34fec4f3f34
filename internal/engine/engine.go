package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slotswap/internal/domain"
)

// Engine enforces the slot-exchange protocol. Every operation runs in
// exactly one Store transaction; transient store conflicts are retried with
// the same input up to MaxAttempts times.
type Engine struct {
	Store       Store
	Log         *zap.Logger
	Now         func() time.Time
	NewID       func() string
	MaxAttempts int
	Backoff     time.Duration
}

type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

func New(store Store, opts Options) Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		Store:       store,
		Log:         log,
		Now:         time.Now,
		NewID:       func() string { return uuid.New().String() },
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.RetryBackoff,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.New().String()
}

func (e Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// inTx runs fn through the store, retrying only domain.ErrTransient. The
// backoff grows linearly with the attempt number.
func (e Engine) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.Store.InTx(ctx, fn)
		if !errors.Is(err, domain.ErrTransient) {
			return err
		}
		e.logger().Warn("transient store conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*e.Backoff); err != nil {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
