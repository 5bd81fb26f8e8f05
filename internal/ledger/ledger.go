// Package ledger records which replication identities have already been
// copied to the backup directory.
package ledger

import (
	"context"
	"errors"

	"github.com/tinoosan/dubsync/internal/data"
)

var ErrEmptyIdentity = errors.New("ledger: empty identity")

// Ledger is the replication history consulted by the sync engine. Marking an
// identity twice has no additional effect; the first record wins.
type Ledger interface {
	Reader
	Writer
}

type Reader interface {
	AlreadyReplicated(ctx context.Context, id string) (bool, error)
	// Get returns data.ErrNotFound when id was never marked.
	Get(ctx context.Context, id string) (data.ReplicationRecord, error)
	List(ctx context.Context) (data.ReplicationRecords, error)
	Len(ctx context.Context) (int, error)
}

type Writer interface {
	MarkReplicated(ctx context.Context, rec data.ReplicationRecord) error
}

// Pinger is implemented by ledgers backed by an external store.
type Pinger interface {
	Ping(ctx context.Context) error
}
