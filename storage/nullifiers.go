package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var registeredVotesMetric = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zkdisclosure",
	Subsystem: "storage",
	Name:      "registered_votes_total",
	Help:      "Number of vote records registered in the nullifier registry",
})

// VoteRecord is a proven vote: the disclosed record with the seal and the
// journal that attest it.
type VoteRecord struct {
	Record       disclosure.Record `cbor:"1,keyasint" json:"record"`
	Seal         types.HexBytes    `cbor:"2,keyasint" json:"seal"`
	Journal      types.HexBytes    `cbor:"3,keyasint" json:"journal"`
	ProgramID    types.Digest      `cbor:"4,keyasint" json:"programId"`
	JobID        string            `cbor:"5,keyasint,omitempty" json:"jobId,omitempty"`
	RegisteredAt int64             `cbor:"6,keyasint" json:"registeredAt"`
}

// NullifierProof is a proof of inclusion, or non inclusion, of a nullifier
// in the registry.
type NullifierProof struct {
	Root      types.HexBytes `json:"root"`
	Key       types.HexBytes `json:"key"`
	Value     types.HexBytes `json:"value"`
	Siblings  types.HexBytes `json:"siblings"`
	Inclusion bool           `json:"inclusion"`
}

// RegisterVote stores the vote record and adds its nullifier to the
// registry in a single write transaction. It returns ErrNullifierAlreadyUsed
// if the nullifier already has a vote record. A registry leaf without a
// record is overwritten.
func (s *Storage) RegisterVote(vote *VoteRecord) error {
	key, err := disclosure.NullifierBytes(vote.Record.Nullifier)
	if err != nil {
		return err
	}
	s.nullifiersLock.Lock()
	defer s.nullifiersLock.Unlock()

	used, err := s.hasArtifact(recordPrefix, key)
	if err != nil {
		return fmt.Errorf("check nullifier: %w", err)
	}
	if used {
		return fmt.Errorf("%w: %s", ErrNullifierAlreadyUsed, vote.Record.Nullifier)
	}
	vote.RegisteredAt = time.Now().Unix()
	val, err := encodeArtifact(vote)
	if err != nil {
		return err
	}
	leaf := sha256.Sum256(val)

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	treeTx := prefixeddb.NewPrefixedWriteTx(wTx, nullifierTreePrefix)
	_, _, err = s.nullifiers.GetWithTx(treeTx, key)
	switch {
	case errors.Is(err, arbo.ErrKeyNotFound):
		err = s.nullifiers.AddWithTx(treeTx, key, leaf[:])
	case err == nil:
		err = s.nullifiers.UpdateWithTx(treeTx, key, leaf[:])
	}
	if err != nil {
		return fmt.Errorf("add nullifier to the registry: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, recordPrefix).Set(key, val); err != nil {
		return fmt.Errorf("store vote record: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, pollIndexPrefix).Set(pollIndexKey(vote.Record.PollID, key), key); err != nil {
		return fmt.Errorf("index vote record: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit vote record: %w", err)
	}
	registeredVotesMetric.Inc()
	return nil
}

// pollIndexKey is the big endian poll id followed by the nullifier, so the
// records of a poll share a prefix.
func pollIndexKey(pollID uint64, nullifier []byte) []byte {
	return append(binary.BigEndian.AppendUint64(nil, pollID), nullifier...)
}

// PollVotes returns the vote records registered for the poll, ordered by
// nullifier.
func (s *Storage) PollVotes(pollID uint64) ([]*VoteRecord, error) {
	s.nullifiersLock.RLock()
	defer s.nullifiersLock.RUnlock()

	var keys [][]byte
	pr := prefixeddb.NewPrefixedReader(s.db, pollIndexPrefix)
	if err := pr.Iterate(binary.BigEndian.AppendUint64(nil, pollID), func(_, v []byte) bool {
		keys = append(keys, bytes.Clone(v))
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate poll index: %w", err)
	}
	votes := make([]*VoteRecord, 0, len(keys))
	for _, key := range keys {
		vote := &VoteRecord{}
		if err := s.getArtifact(recordPrefix, key, vote); err != nil {
			return nil, fmt.Errorf("vote record %x: %w", key, err)
		}
		votes = append(votes, vote)
	}
	return votes, nil
}

// VoteRecord returns the vote record registered for the nullifier or
// ErrNotFound.
func (s *Storage) VoteRecord(nullifier string) (*VoteRecord, error) {
	key, err := disclosure.NullifierBytes(nullifier)
	if err != nil {
		return nil, err
	}
	s.nullifiersLock.RLock()
	defer s.nullifiersLock.RUnlock()
	vote := &VoteRecord{}
	if err := s.getArtifact(recordPrefix, key, vote); err != nil {
		return nil, err
	}
	return vote, nil
}

// NullifierRoot returns the root of the nullifier registry.
func (s *Storage) NullifierRoot() (types.HexBytes, error) {
	s.nullifiersLock.RLock()
	defer s.nullifiersLock.RUnlock()
	return s.nullifiers.Root()
}

// CountNullifiers returns the number of registered nullifiers.
func (s *Storage) CountNullifiers() (int, error) {
	s.nullifiersLock.RLock()
	defer s.nullifiersLock.RUnlock()
	return s.nullifiers.GetNLeafs()
}

// NullifierProof returns the registry proof for the nullifier.
func (s *Storage) NullifierProof(nullifier string) (*NullifierProof, error) {
	key, err := disclosure.NullifierBytes(nullifier)
	if err != nil {
		return nil, err
	}
	s.nullifiersLock.RLock()
	defer s.nullifiersLock.RUnlock()
	root, err := s.nullifiers.Root()
	if err != nil {
		return nil, err
	}
	leafKey, leafValue, siblings, inclusion, err := s.nullifiers.GenProof(key)
	if err != nil {
		return nil, fmt.Errorf("generate nullifier proof: %w", err)
	}
	return &NullifierProof{
		Root:      root,
		Key:       leafKey,
		Value:     leafValue,
		Siblings:  siblings,
		Inclusion: inclusion,
	}, nil
}

// VerifyNullifierProof checks an inclusion proof of the registry.
func VerifyNullifierProof(nullifier string, proof *NullifierProof) (bool, error) {
	key, err := disclosure.NullifierBytes(nullifier)
	if err != nil {
		return false, err
	}
	if !proof.Inclusion {
		return false, nil
	}
	return arbo.CheckProof(arbo.HashFunctionSha256, key, proof.Value, proof.Root, proof.Siblings)
}
