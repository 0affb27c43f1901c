// disclosure package defines the record a vote proof discloses and its
// canonical encodings. The record is the only information about the voter that
// leaves the guest program: a nullifier derived from the voter id, the age,
// the student flag and the poll the vote belongs to.
//
// The binary layout of a record is, in field order:
//
//	u64 LE nullifier length | nullifier | u32 LE age | u8 is_student | u64 LE poll id
//
// The journal committed by the guest is that layout wrapped as a single ABI
// encoded `bytes` value.
package disclosure

import (
	"encoding/binary"
	"fmt"

	"github.com/vocdoni/zk-disclosure/types"
)

const (
	lengthPrefixSize = 8
	ageSize          = 4
	boolSize         = 1
	pollIDSize       = 8
	// fixedFieldsSize is the size of the fields after the nullifier.
	fixedFieldsSize = ageSize + boolSize + pollIDSize
)

// Record is the set of fields disclosed by a vote proof.
type Record struct {
	Nullifier string `json:"nullifier" cbor:"0,keyasint"`
	Age       uint32 `json:"age" cbor:"1,keyasint"`
	IsStudent bool   `json:"isStudent" cbor:"2,keyasint"`
	PollID    uint64 `json:"pollId" cbor:"3,keyasint"`
}

// Marshal returns the canonical binary encoding of the record.
func (r *Record) Marshal() []byte {
	buf := make([]byte, 0, lengthPrefixSize+len(r.Nullifier)+fixedFieldsSize)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(r.Nullifier)))
	buf = append(buf, r.Nullifier...)
	buf = binary.LittleEndian.AppendUint32(buf, r.Age)
	if r.IsStudent {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint64(buf, r.PollID)
	return buf
}

// Unmarshal decodes the canonical binary encoding into the record. Any
// deviation from the layout (truncated data, trailing bytes, a boolean byte
// other than 0 or 1, or a malformed nullifier) returns types.ErrStructural.
func (r *Record) Unmarshal(data []byte) error {
	if len(data) < lengthPrefixSize {
		return fmt.Errorf("%w: record too short: %d bytes", types.ErrStructural, len(data))
	}
	nullifierLen := binary.LittleEndian.Uint64(data[:lengthPrefixSize])
	rest := data[lengthPrefixSize:]
	if nullifierLen > uint64(len(rest)) {
		return fmt.Errorf("%w: nullifier length %d exceeds record size", types.ErrStructural, nullifierLen)
	}
	nullifier := string(rest[:nullifierLen])
	rest = rest[nullifierLen:]
	if len(rest) != fixedFieldsSize {
		return fmt.Errorf("%w: expected %d bytes after the nullifier, got %d",
			types.ErrStructural, fixedFieldsSize, len(rest))
	}
	if !ValidNullifier(nullifier) {
		return fmt.Errorf("%w: malformed nullifier %q", types.ErrStructural, nullifier)
	}
	age := binary.LittleEndian.Uint32(rest[:ageSize])
	var isStudent bool
	switch rest[ageSize] {
	case 0:
	case 1:
		isStudent = true
	default:
		return fmt.Errorf("%w: invalid boolean byte 0x%02x", types.ErrStructural, rest[ageSize])
	}
	pollID := binary.LittleEndian.Uint64(rest[ageSize+boolSize:])

	r.Nullifier = nullifier
	r.Age = age
	r.IsStudent = isStudent
	r.PollID = pollID
	return nil
}

// Equal reports whether both records hold the same values.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return *r == *other
}
