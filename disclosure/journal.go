package disclosure

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/vocdoni/zk-disclosure/types"
)

// envelope is the ABI argument list used to wrap the record encoding, a
// single dynamic `bytes` value.
var envelope = func() abi.Arguments {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid abi type: %v", err))
	}
	return abi.Arguments{{Type: bytesType}}
}()

// WrapEnvelope ABI encodes the payload as a single `bytes` value.
func WrapEnvelope(payload []byte) ([]byte, error) {
	if payload == nil {
		payload = []byte{}
	}
	encoded, err := envelope.Pack(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding abi envelope: %w", err)
	}
	return encoded, nil
}

// UnwrapEnvelope decodes an ABI encoded `bytes` value. The input must be the
// canonical encoding of the payload, otherwise types.ErrStructural is
// returned.
func UnwrapEnvelope(encoded []byte) ([]byte, error) {
	values, err := envelope.Unpack(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid abi envelope: %w", types.ErrStructural, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: abi envelope holds %d values", types.ErrStructural, len(values))
	}
	payload, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: abi envelope does not hold bytes", types.ErrStructural)
	}
	canonical, err := envelope.Pack(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStructural, err)
	}
	if !bytes.Equal(canonical, encoded) {
		return nil, fmt.Errorf("%w: non canonical abi envelope", types.ErrStructural)
	}
	return payload, nil
}

// EncodeJournal returns the journal bytes for the record: its canonical
// binary encoding wrapped in the ABI envelope.
func EncodeJournal(r *Record) ([]byte, error) {
	if !ValidNullifier(r.Nullifier) {
		return nil, fmt.Errorf("%w: malformed nullifier %q", types.ErrStructural, r.Nullifier)
	}
	return WrapEnvelope(r.Marshal())
}

// DecodeJournal decodes the journal bytes into a record. It also returns the
// inner record encoding recovered from the envelope.
func DecodeJournal(journal []byte) (*Record, []byte, error) {
	payload, err := UnwrapEnvelope(journal)
	if err != nil {
		return nil, nil, err
	}
	r := &Record{}
	if err := r.Unmarshal(payload); err != nil {
		return nil, nil, err
	}
	return r, payload, nil
}
