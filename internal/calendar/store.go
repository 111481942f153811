package calendar

import "context"

// Store persists provider aggregates. Load and Save are assumed atomic
// per provider: a Load following a Save observes either the whole
// snapshot or the previous one, never a torn write. Store failures are
// fatal to the operation in flight and are propagated as plain errors.
type Store interface {
	Load(ctx context.Context, providerID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Locker serializes mutations per provider for the full duration of a
// check-then-commit. Two concurrent writers reading the same
// pre-mutation snapshot could otherwise both pass validation.
type Locker interface {
	WithProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context) error) error
}
