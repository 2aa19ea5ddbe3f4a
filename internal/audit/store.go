package audit

import (
	"context"
	"errors"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type fanout []Store

// Fanout appends every event to each store in order. All stores are
// attempted; their errors are joined.
func Fanout(stores ...Store) Store {
	return fanout(stores)
}

func (f fanout) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
