package domain

import "context"

// SessionEvent is one change notification. Session is nil once the record
// has been deleted.
type SessionEvent struct {
	SessionID string
	Session   *Session
}

func (e SessionEvent) Deleted() bool {
	return e.Session == nil
}

// SessionStore is the shared source of truth for Sessions. Every write is
// serialized per record; Update is a compare-and-update against the version
// the mutator saw.
type SessionStore interface {
	// Create inserts a new record. The caller owns the id.
	Create(ctx context.Context, s *Session) error

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Session, error)

	// Update reads the record, runs mutate on a private copy and writes it
	// back only if nobody else wrote in between, retrying on conflict. A
	// mutate error aborts without writing; ErrUnchanged aborts and returns
	// the current snapshot with a nil error.
	Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error)

	// Delete removes the record unconditionally.
	Delete(ctx context.Context, id string) error

	// DeleteIf removes the record only if cond holds on its latest version.
	DeleteIf(ctx context.Context, id string, cond func(*Session) bool) (bool, error)

	// FindByStatus returns up to limit records with the given status,
	// oldest first.
	FindByStatus(ctx context.Context, status Status, limit int) ([]*Session, error)

	// CreateSuccessor atomically inserts successor and links it from the
	// original via Session.LinkSuccessor. When another successor is already
	// linked it returns the original and ErrRaceLost without inserting.
	CreateSuccessor(ctx context.Context, originalID string, successor *Session) (*Session, error)

	// Subscribe streams full snapshots of one record. The first event is the
	// current state. The channel closes after a deletion event or when ctx
	// is done.
	Subscribe(ctx context.Context, id string) (<-chan SessionEvent, error)
}
