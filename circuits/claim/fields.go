package claim

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/vocdoni/zk-disclosure/types"
)

// Keys of the disclosed fields, as they must appear in a message.
const (
	voterIDKey   = `"id":`
	ageKey       = `"age":`
	isStudentKey = `"is_student":`
)

// Fields are the disclosed fields of a message and the offsets of their
// keys in it.
type Fields struct {
	VoterID         string
	VoterIDOffset   int
	Age             uint32
	AgeOffset       int
	AgeDigits       int
	IsStudent       bool
	IsStudentOffset int
}

// LocateFields finds the disclosed fields in the raw message. Every key must
// occur exactly once and be immediately followed by its value: a string with
// no quotes or escapes for the id, a decimal without leading zeros followed
// by ',' or '}' for the age, and true or false for the student flag. Any
// other layout returns types.ErrDecoding.
func LocateFields(message []byte) (*Fields, error) {
	if len(message) > MaxMessageSize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds %d bytes",
			types.ErrDecoding, len(message), MaxMessageSize)
	}
	f := &Fields{}
	var err error

	if f.VoterIDOffset, err = keyOffset(message, voterIDKey); err != nil {
		return nil, err
	}
	value := message[f.VoterIDOffset+len(voterIDKey):]
	if len(value) == 0 || value[0] != '"' {
		return nil, fmt.Errorf("%w: %s is not followed by a string", types.ErrDecoding, voterIDKey)
	}
	end := bytes.IndexByte(value[1:], '"')
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated voter id", types.ErrDecoding)
	}
	id := value[1 : 1+end]
	if bytes.IndexByte(id, '\\') >= 0 {
		return nil, fmt.Errorf("%w: escaped voter id", types.ErrDecoding)
	}
	if len(id) > MaxVoterIDSize {
		return nil, fmt.Errorf("%w: voter id of %d bytes exceeds %d bytes",
			types.ErrDecoding, len(id), MaxVoterIDSize)
	}
	f.VoterID = string(id)

	if f.AgeOffset, err = keyOffset(message, ageKey); err != nil {
		return nil, err
	}
	value = message[f.AgeOffset+len(ageKey):]
	for f.AgeDigits < len(value) && value[f.AgeDigits] >= '0' && value[f.AgeDigits] <= '9' {
		f.AgeDigits++
	}
	switch {
	case f.AgeDigits == 0 || f.AgeDigits > maxAgeDigits:
		return nil, fmt.Errorf("%w: %s is not followed by an unsigned integer", types.ErrDecoding, ageKey)
	case f.AgeDigits > 1 && value[0] == '0':
		return nil, fmt.Errorf("%w: age with leading zeros", types.ErrDecoding)
	case f.AgeDigits == len(value) || (value[f.AgeDigits] != ',' && value[f.AgeDigits] != '}'):
		return nil, fmt.Errorf("%w: age must be followed by ',' or '}'", types.ErrDecoding)
	}
	age, err := strconv.ParseUint(string(value[:f.AgeDigits]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: age is not an unsigned 32 bits integer", types.ErrDecoding)
	}
	f.Age = uint32(age)

	if f.IsStudentOffset, err = keyOffset(message, isStudentKey); err != nil {
		return nil, err
	}
	value = message[f.IsStudentOffset+len(isStudentKey):]
	switch {
	case bytes.HasPrefix(value, []byte("true")):
		f.IsStudent = true
	case bytes.HasPrefix(value, []byte("false")):
	default:
		return nil, fmt.Errorf("%w: %s is not followed by a boolean", types.ErrDecoding, isStudentKey)
	}
	return f, nil
}

// keyOffset returns the offset of the only occurrence of key in message.
func keyOffset(message []byte, key string) (int, error) {
	switch n := bytes.Count(message, []byte(key)); n {
	case 1:
		return bytes.Index(message, []byte(key)), nil
	case 0:
		return 0, fmt.Errorf("%w: missing key %s", types.ErrDecoding, key)
	default:
		return 0, fmt.Errorf("%w: key %s occurs %d times", types.ErrDecoding, key, n)
	}
}
