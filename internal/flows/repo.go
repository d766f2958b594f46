package flows

import (
	"context"
	"time"
)

// Repo persists flows for the length of their TTL.
type Repo interface {
	Create(ctx context.Context, flow Flow) error
	Get(ctx context.Context, id string) (Flow, error)
	// Save stores flow if the stored Version still equals flow.Version and
	// returns it with the bumped version. Otherwise it returns ErrConflict.
	Save(ctx context.Context, flow Flow) (Flow, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes flows whose ExpiresAt is not after now and returns them.
	DeleteExpired(ctx context.Context, now time.Time) ([]Flow, error)
}
