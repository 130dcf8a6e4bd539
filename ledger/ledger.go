// Package ledger records every price target that was reached. It is an
// append-only audit trail; readings taken while polling are never stored.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one reached target.
type Entry struct {
	Item        string
	Title       string
	URL         string
	Target      decimal.Decimal
	Price       decimal.Decimal
	ProofPath   string
	Notified    bool
	CompletedAt time.Time
}

type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Multi appends to every sink and joins their errors.
type Multi []Sink

func (m Multi) Append(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
