// storage package persists the state of a disclosure node on a key-value
// database. The following prefixes are used:
//   - 'j/' for prove jobs (queued)
//   - 'q/' for the job queue order
//   - 'jr/' for prove job reservations
//   - 'r/' for the vote records, by nullifier
//   - 'p/' for the poll index of the vote records
//   - 'n/' for the nullifier registry tree
//
// Artifact files written by the proving CLI are handled by WriteArtifacts.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-disclosure/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	jobPrefix            = []byte("j/")
	jobReservationPrefix = []byte("jr/")
	recordPrefix         = []byte("r/")
	pollIndexPrefix      = []byte("p/")
	nullifierTreePrefix  = []byte("n/")
)

const (
	// nullifierTreeLevels is the depth of the nullifier registry tree, one
	// level per bit of a nullifier.
	nullifierTreeLevels = 256
)

var (
	// ErrNotFound is returned when an artifact is not found in the storage.
	ErrNotFound = errors.New("not found")
	// ErrNoMoreElements is returned when a queue has no unreserved elements.
	ErrNoMoreElements = errors.New("no more elements")
	// ErrNullifierAlreadyUsed is returned when a vote record is registered
	// for a nullifier that already has one.
	ErrNullifierAlreadyUsed = errors.New("nullifier already used")
)

// Storage is the persistent state of a node: the prove job queue, the vote
// records and the nullifier registry.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex

	nullifiersLock sync.RWMutex
	nullifiers     *arbo.Tree
}

// New creates a new Storage instance on top of the database provided.
func New(database db.Database) (*Storage, error) {
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(database, nullifierTreePrefix),
		MaxLevels:    nullifierTreeLevels,
		HashFunction: arbo.HashFunctionSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open nullifier registry: %w", err)
	}
	return &Storage{db: database, nullifiers: tree}, nil
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("error closing storage", "error", err.Error())
	}
}
