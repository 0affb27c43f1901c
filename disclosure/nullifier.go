package disclosure

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/vocdoni/zk-disclosure/types"
)

// NullifierSize is the size in bytes of a nullifier, its hex representation
// doubles it.
const NullifierSize = types.DigestSize

// DeriveNullifier returns the lowercase hex SHA-256 digest of
// salt || voterID || decimal(pollID). The same voter gets the same nullifier
// within a poll and a different one in every other poll. Since the salt is
// shared by every voter, anyone knowing the salt and a voter id can link that
// voter's nullifiers across polls.
func DeriveNullifier(salt []byte, voterID string, pollID uint64) string {
	return types.DigestOf(salt, []byte(voterID), []byte(strconv.FormatUint(pollID, 10))).String()
}

// ValidNullifier reports whether s is a lowercase hex encoded nullifier.
func ValidNullifier(s string) bool {
	if len(s) != NullifierSize*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}

// NullifierBytes decodes a hex nullifier into its raw bytes.
func NullifierBytes(s string) ([]byte, error) {
	if !ValidNullifier(s) {
		return nil, fmt.Errorf("%w: malformed nullifier %q", types.ErrDecoding, s)
	}
	return hex.DecodeString(s)
}
