package records

import (
	"context"
	"errors"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
)

var (
	// ErrAlreadyExists means an insert targeted an id that is already
	// present. Inserts never overwrite.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrConflict means a compare-and-swap update lost: the row was
	// changed or removed since it was read.
	ErrConflict = errors.New("record modified concurrently")
)

// StoreStats are the index-derived counts a store computes without
// touching ciphertext.
type StoreStats struct {
	Total     int
	ByStatus  map[patient.Status]int
	ByUrgency map[int]int
	BlobBytes int64
}

// Store is the persistence contract for encrypted records: a single
// keyed table with plaintext secondary fields (timestamp, last-updated,
// priority urgency, status) indexed for sort and filter without
// decryption.
//
// Writes stamp LastUpdated with the current time when the caller left
// it zero, as a safety net; a caller-set value (import verbatim) is
// preserved. Insert assigns revision 1; Update requires the revision
// the caller read and bumps it on success, returning ErrConflict when
// the row is missing or the revision is stale.
type Store interface {
	// Init prepares the backing storage. Idempotent.
	Init(ctx context.Context) error

	Get(ctx context.Context, id string) (*EncryptedRecord, bool, error)
	Insert(ctx context.Context, rec *EncryptedRecord) error
	Update(ctx context.Context, rec *EncryptedRecord, expectedRevision int64) error
	Delete(ctx context.Context, id string) (bool, error)

	// List returns every record ordered by urgency ascending, then
	// creation timestamp ascending. The filtered variants order by
	// creation timestamp.
	List(ctx context.Context) ([]*EncryptedRecord, error)
	ListByStatus(ctx context.Context, status patient.Status) ([]*EncryptedRecord, error)
	ListByPriority(ctx context.Context, urgency int) ([]*EncryptedRecord, error)

	Stats(ctx context.Context) (*StoreStats, error)
}
