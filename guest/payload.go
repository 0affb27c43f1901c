package guest

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/vocdoni/zk-disclosure/circuits/claim"
	"github.com/vocdoni/zk-disclosure/types"
)

// Paths of the vote payload fields read by the guest.
const (
	VoterIDPath   = "$.id"
	AgePath       = "$.age"
	IsStudentPath = "$.is_student"
)

type payloadFields struct {
	id        string
	age       uint32
	isStudent bool
}

// extractFields parses the message as a JSON document and reads the fields
// disclosed by the guest. Missing, null or mistyped fields are decoding
// errors, there are no defaults. The fields must also be found in the raw
// message by claim.LocateFields with the same values.
func extractFields(message string) (*payloadFields, error) {
	dec := json.NewDecoder(strings.NewReader(message))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: message is not a JSON document: %w", types.ErrDecoding, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after the JSON document", types.ErrDecoding)
	}

	id, err := lookup[string](doc, VoterIDPath)
	if err != nil {
		return nil, err
	}
	ageNumber, err := lookup[json.Number](doc, AgePath)
	if err != nil {
		return nil, err
	}
	age, err := strconv.ParseUint(ageNumber.String(), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not an unsigned 32 bits integer: %s", types.ErrDecoding, AgePath, ageNumber)
	}
	isStudent, err := lookup[bool](doc, IsStudentPath)
	if err != nil {
		return nil, err
	}

	// the claim circuit reads the fields from the raw message
	located, err := claim.LocateFields([]byte(message))
	if err != nil {
		return nil, err
	}
	if located.VoterID != id || located.Age != uint32(age) || located.IsStudent != isStudent {
		return nil, fmt.Errorf("%w: disclosed fields are not in compact form", types.ErrDecoding)
	}
	return &payloadFields{id: id, age: uint32(age), isStudent: isStudent}, nil
}

func lookup[T any](doc any, path string) (T, error) {
	var zero T
	value, err := jsonpath.Get(path, doc)
	if err != nil {
		return zero, fmt.Errorf("%w: missing field %s: %w", types.ErrDecoding, path, err)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: field %s has type %T, expected %T", types.ErrDecoding, path, value, zero)
	}
	return typed, nil
}
