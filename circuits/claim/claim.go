// Package claim defines the circuit that backs SNARK receipts. The public
// inputs are the program id and the receipt claim digest, split in 128-bit
// limbs, and the registered secp256k1 public key. The circuit re-derives the
// claim of a castvote run from the private witness:
//
//   - the message hash is signed by the registered key,
//   - the voter id, age and student flag occur in the signed message,
//   - the nullifier is SHA-256(salt || id || decimal(poll id)),
//   - the journal is the ABI envelope of the record built from them,
//   - the program id is SHA-256(SHA-256(salt) || image metadata digest),
//   - the claim digest commits to that program id and journal.
//
// A proof therefore attests the journal, not only the signature.
package claim

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/emulated/sw_emulated"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/emulated"
	"github.com/consensys/gnark/std/math/uints"
	"github.com/consensys/gnark/std/selector"
	gnarkecdsa "github.com/consensys/gnark/std/signature/ecdsa"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

// Curve is the curve the claim circuit is compiled for. BN254 proofs can be
// verified by the EVM precompiles.
var Curve = ecc.BN254

const (
	// MaxMessageSize is the size limit of a signed message.
	MaxMessageSize = 512
	// MaxVoterIDSize is the size limit of a voter id.
	MaxVoterIDSize = 64
	// MaxSaltSize is the size limit of the nullifier salt.
	MaxSaltSize = 64

	maxAgeDigits  = 10
	maxPollDigits = 20

	// limbBits is the size of each of the two limbs of a public digest.
	limbBits = 128

	nullifierHexSize = 2 * types.DigestSize
	// recordSize is the size of an encoded disclosure record.
	recordSize = 8 + nullifierHexSize + 4 + 1 + 8
	// journalSize is the size of the ABI envelope of a record: offset,
	// length and the record padded to 32 bytes.
	journalSize = 32 + 32 + (recordSize+31)/32*32
)

// Circuit proves a castvote run of the program identified by ProgramID that
// committed the journal attested by ClaimDigest.
type Circuit struct {
	ProgramID   [2]frontend.Variable                                             `gnark:",public"`
	ClaimDigest [2]frontend.Variable                                             `gnark:",public"`
	PublicKey   gnarkecdsa.PublicKey[emulated.Secp256k1Fp, emulated.Secp256k1Fr] `gnark:",public"`

	Message       [MaxMessageSize]frontend.Variable
	MessageLength frontend.Variable
	Signature     gnarkecdsa.Signature[emulated.Secp256k1Fr]

	Salt       [MaxSaltSize]frontend.Variable
	SaltLength frontend.Variable
	ImageMeta  [types.DigestSize]frontend.Variable

	VoterIDOffset   frontend.Variable
	VoterIDLength   frontend.Variable
	AgeOffset       frontend.Variable
	AgeDigits       frontend.Variable
	IsStudentOffset frontend.Variable
	IsStudent       frontend.Variable

	PollID           frontend.Variable
	PollDigits       [maxPollDigits]frontend.Variable
	PollDigitsLength frontend.Variable
}

// Define declares the circuit constraints.
func (c *Circuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}
	api.AssertIsLessOrEqual(c.MessageLength, MaxMessageSize)
	api.AssertIsLessOrEqual(c.SaltLength, MaxSaltSize)
	message := byteValues(uapi, c.Message[:])
	salt := byteValues(uapi, c.Salt[:])

	// signature of the message
	messageHash, err := fixedLengthSum(api, message, c.MessageLength)
	if err != nil {
		return err
	}
	curveDigest, err := sum(api, messageHash)
	if err != nil {
		return err
	}
	scalars, err := emulated.NewField[emulated.Secp256k1Fr](api)
	if err != nil {
		return err
	}
	c.PublicKey.Verify(api, sw_emulated.GetCurveParams[emulated.Secp256k1Fp](),
		scalars.FromBits(littleEndianBits(api, curveDigest)...), &c.Signature)

	// program identity
	saltDigest, err := fixedLengthSum(api, salt, c.SaltLength)
	if err != nil {
		return err
	}
	programID, err := sum(api, saltDigest, byteValues(uapi, c.ImageMeta[:]))
	if err != nil {
		return err
	}
	assertLimbs(api, programID, c.ProgramID)

	// disclosed fields
	m := &signedMessage{api: api, bytes: c.Message[:], length: c.MessageLength}
	voterID := c.voterID(api, m)
	age := c.age(api, m)
	c.isStudent(api, m)
	pollChars := c.pollIDChars(api)

	// nullifier and journal
	preimage, preimageLength := c.nullifierPreimage(api, voterID, pollChars)
	nullifier, err := fixedLengthSum(api, byteValues(uapi, preimage), preimageLength)
	if err != nil {
		return err
	}
	journal := c.journal(api, uapi, hexChars(api, nullifier), age)
	journalDigest, err := sum(api, journal)
	if err != nil {
		return err
	}

	tag := sha256.Sum256([]byte(zkvm.ReceiptClaimTag))
	claimDigest, err := sum(api,
		uints.NewU8Array(tag[:]),
		programID,
		journalDigest,
		uints.NewU8Array([]byte{0, 0, 0, 0}), // exit code
	)
	if err != nil {
		return err
	}
	assertLimbs(api, claimDigest, c.ClaimDigest)
	return nil
}

// signedMessage reads bytes of the message at variable positions.
type signedMessage struct {
	api    frontend.API
	bytes  []frontend.Variable
	length frontend.Variable
}

// at returns the byte at pos, which must be lower than MaxMessageSize.
func (m *signedMessage) at(pos frontend.Variable) frontend.Variable {
	return selector.Mux(m.api, pos, m.bytes...)
}

// expect asserts that the message holds pattern at pos.
func (m *signedMessage) expect(pos frontend.Variable, pattern string) {
	for i := 0; i < len(pattern); i++ {
		m.api.AssertIsEqual(m.at(m.api.Add(pos, i)), int(pattern[i]))
	}
}

// within asserts that the bytes before end are part of the signed message.
func (m *signedMessage) within(end frontend.Variable) {
	m.api.AssertIsLessOrEqual(end, m.length)
}

// voterID returns the id bytes, zero after VoterIDLength.
func (c *Circuit) voterID(api frontend.API, m *signedMessage) []frontend.Variable {
	m.expect(c.VoterIDOffset, voterIDKey+`"`)
	start := api.Add(c.VoterIDOffset, len(voterIDKey)+1)
	end := api.Add(start, c.VoterIDLength)
	m.expect(end, `"`)
	m.within(api.Add(end, 1))

	inID := prefixMask(api, MaxVoterIDSize, c.VoterIDLength)
	id := make([]frontend.Variable, MaxVoterIDSize)
	for i := range id {
		b := m.at(api.Select(inID[i], api.Add(start, i), 0))
		// no quotes or escapes inside the id
		api.AssertIsDifferent(api.Select(inID[i], api.Mul(api.Sub(b, '"'), api.Sub(b, '\\')), 1), 0)
		id[i] = api.Mul(inID[i], b)
	}
	return id
}

// age returns the value of the decimal that follows the age key.
func (c *Circuit) age(api frontend.API, m *signedMessage) frontend.Variable {
	m.expect(c.AgeOffset, ageKey)
	start := api.Add(c.AgeOffset, len(ageKey))
	api.AssertIsDifferent(c.AgeDigits, 0)

	inAge := prefixMask(api, maxAgeDigits, c.AgeDigits)
	var age, first frontend.Variable = 0, 0
	for i := 0; i < maxAgeDigits; i++ {
		b := m.at(api.Select(inAge[i], api.Add(start, i), 0))
		d := api.Select(inAge[i], api.Sub(b, '0'), 0)
		assertDigit(api, d)
		if i == 0 {
			first = d
		}
		age = api.Select(inAge[i], api.Add(api.Mul(age, 10), d), age)
	}
	assertNoLeadingZero(api, first, c.AgeDigits)

	end := api.Add(start, c.AgeDigits)
	next := m.at(end)
	api.AssertIsEqual(api.Mul(api.Sub(next, ','), api.Sub(next, '}')), 0)
	m.within(api.Add(end, 1))
	return age
}

// isStudent asserts that IsStudent is the literal after the student key.
func (c *Circuit) isStudent(api frontend.API, m *signedMessage) {
	api.AssertIsBoolean(c.IsStudent)
	m.expect(c.IsStudentOffset, isStudentKey)
	start := api.Add(c.IsStudentOffset, len(isStudentKey))
	for i := 0; i < len("true"); i++ {
		api.AssertIsEqual(m.at(api.Add(start, i)), api.Select(c.IsStudent, int("true"[i]), int("false"[i])))
	}
	last := m.at(api.Select(c.IsStudent, 0, api.Add(start, len("true"))))
	api.AssertIsEqual(api.Mul(api.Sub(1, c.IsStudent), api.Sub(last, 'e')), 0)
	m.within(api.Sub(api.Add(start, len("false")), c.IsStudent))
}

// pollIDChars returns the ASCII decimal digits of PollID.
func (c *Circuit) pollIDChars(api frontend.API) []frontend.Variable {
	api.AssertIsDifferent(c.PollDigitsLength, 0)
	inPoll := prefixMask(api, maxPollDigits, c.PollDigitsLength)
	chars := make([]frontend.Variable, maxPollDigits)
	var value frontend.Variable = 0
	for i, digit := range c.PollDigits {
		d := api.Mul(inPoll[i], digit)
		assertDigit(api, d)
		value = api.Select(inPoll[i], api.Add(api.Mul(value, 10), d), value)
		chars[i] = api.Add(d, '0')
	}
	assertNoLeadingZero(api, c.PollDigits[0], c.PollDigitsLength)
	api.AssertIsEqual(value, c.PollID)
	return chars
}

// nullifierPreimage returns salt || id || poll id digits and its length.
func (c *Circuit) nullifierPreimage(api frontend.API, voterID, pollChars []frontend.Variable) ([]frontend.Variable, frontend.Variable) {
	const size = MaxSaltSize + MaxVoterIDSize + maxPollDigits
	saltAndID := api.Add(c.SaltLength, c.VoterIDLength)
	length := api.Add(saltAndID, c.PollDigitsLength)
	inSalt := prefixMask(api, size, c.SaltLength)
	inSaltOrID := prefixMask(api, size, saltAndID)
	inAny := prefixMask(api, size, length)

	out := make([]frontend.Variable, size)
	for i := range out {
		inID := api.Sub(inSaltOrID[i], inSalt[i])
		inPoll := api.Sub(inAny[i], inSaltOrID[i])
		var b frontend.Variable = 0
		if i < MaxSaltSize {
			b = api.Mul(inSalt[i], c.Salt[i])
		}
		idByte := selector.Mux(api, api.Select(inID, api.Sub(i, c.SaltLength), 0), voterID...)
		pollChar := selector.Mux(api, api.Select(inPoll, api.Sub(i, saltAndID), 0), pollChars...)
		out[i] = api.Add(b, api.Mul(inID, idByte), api.Mul(inPoll, pollChar))
	}
	return out, length
}

// journal returns the ABI envelope of the record.
func (c *Circuit) journal(api frontend.API, uapi *uints.BinaryField[uints.U32],
	nullifier []frontend.Variable, age frontend.Variable,
) []uints.U8 {
	j := make([]uints.U8, journalSize)
	for i := range j {
		j[i] = uints.NewU8(0)
	}
	j[31] = uints.NewU8(32)
	j[63] = uints.NewU8(recordSize)

	record := j[64:]
	record[0] = uints.NewU8(nullifierHexSize)
	for i, ch := range nullifier {
		record[8+i] = uapi.ByteValueOf(ch)
	}
	rest := record[8+nullifierHexSize:]
	copy(rest[0:4], littleEndianBytes(api, uapi, age, 4))
	rest[4] = uapi.ByteValueOf(c.IsStudent)
	copy(rest[5:13], littleEndianBytes(api, uapi, c.PollID, 8))
	return j
}

// Placeholder returns an empty circuit to be compiled.
func Placeholder() *Circuit {
	return &Circuit{}
}

// Limbs splits a digest in its high and low 128-bit halves, big-endian.
func Limbs(d types.Digest) [2]*big.Int {
	return [2]*big.Int{
		new(big.Int).SetBytes(d[:16]),
		new(big.Int).SetBytes(d[16:]),
	}
}

// Image returns the program image for the salt and the digest of the rest
// of the program metadata. The program id is its SHA-256 digest.
func Image(salt []byte, meta types.Digest) []byte {
	saltDigest := sha256.Sum256(salt)
	return append(saltDigest[:], meta[:]...)
}

// PublicAssignment returns the public part of the circuit assignment, with
// every private value set to zero.
func PublicAssignment(programID, claimDigest types.Digest, pubKey *ecdsa.PublicKey) (*Circuit, error) {
	if pubKey == nil || pubKey.X == nil || pubKey.Y == nil {
		return nil, fmt.Errorf("missing public key")
	}
	programLimbs, claimLimbs := Limbs(programID), Limbs(claimDigest)
	a := &Circuit{
		ProgramID:   [2]frontend.Variable{programLimbs[0], programLimbs[1]},
		ClaimDigest: [2]frontend.Variable{claimLimbs[0], claimLimbs[1]},
		PublicKey: gnarkecdsa.PublicKey[emulated.Secp256k1Fp, emulated.Secp256k1Fr]{
			X: emulated.ValueOf[emulated.Secp256k1Fp](pubKey.X),
			Y: emulated.ValueOf[emulated.Secp256k1Fp](pubKey.Y),
		},
		Signature: gnarkecdsa.Signature[emulated.Secp256k1Fr]{
			R: emulated.ValueOf[emulated.Secp256k1Fr](0),
			S: emulated.ValueOf[emulated.Secp256k1Fr](0),
		},
	}
	for _, vs := range [][]frontend.Variable{a.Message[:], a.Salt[:], a.ImageMeta[:], a.PollDigits[:]} {
		for i := range vs {
			vs[i] = 0
		}
	}
	for _, v := range []*frontend.Variable{
		&a.MessageLength, &a.SaltLength,
		&a.VoterIDOffset, &a.VoterIDLength, &a.AgeOffset, &a.AgeDigits,
		&a.IsStudentOffset, &a.IsStudent, &a.PollID, &a.PollDigitsLength,
	} {
		*v = 0
	}
	return a, nil
}

// Assign returns the full circuit assignment for the claim and the witness
// attested by the guest. The circuit is only satisfied if the claim is the
// one the guest commits for that witness.
func Assign(programID, claimDigest types.Digest, w *zkvm.Witness) (*Circuit, error) {
	if w == nil {
		return nil, fmt.Errorf("missing guest witness")
	}
	if w.R == nil || w.S == nil {
		return nil, fmt.Errorf("incomplete guest witness")
	}
	if len(w.Salt) > MaxSaltSize {
		return nil, fmt.Errorf("salt of %d bytes exceeds %d bytes", len(w.Salt), MaxSaltSize)
	}
	fields, err := LocateFields(w.Message)
	if err != nil {
		return nil, err
	}
	a, err := PublicAssignment(programID, claimDigest, w.PublicKey)
	if err != nil {
		return nil, err
	}
	a.Signature = gnarkecdsa.Signature[emulated.Secp256k1Fr]{
		R: emulated.ValueOf[emulated.Secp256k1Fr](w.R),
		S: emulated.ValueOf[emulated.Secp256k1Fr](w.S),
	}
	a.MessageLength = len(w.Message)
	for i, b := range w.Message {
		a.Message[i] = b
	}
	a.SaltLength = len(w.Salt)
	for i, b := range w.Salt {
		a.Salt[i] = b
	}
	for i, b := range w.ImageMeta {
		a.ImageMeta[i] = b
	}
	a.VoterIDOffset = fields.VoterIDOffset
	a.VoterIDLength = len(fields.VoterID)
	a.AgeOffset = fields.AgeOffset
	a.AgeDigits = fields.AgeDigits
	a.IsStudentOffset = fields.IsStudentOffset
	if fields.IsStudent {
		a.IsStudent = 1
	}
	poll := strconv.FormatUint(w.PollID, 10)
	a.PollID = w.PollID
	a.PollDigitsLength = len(poll)
	for i := 0; i < len(poll); i++ {
		a.PollDigits[i] = poll[i] - '0'
	}
	return a, nil
}

func byteValues(uapi *uints.BinaryField[uints.U32], vs []frontend.Variable) []uints.U8 {
	out := make([]uints.U8, len(vs))
	for i := range vs {
		out[i] = uapi.ByteValueOf(vs[i])
	}
	return out
}

func sum(api frontend.API, parts ...[]uints.U8) ([]uints.U8, error) {
	h, err := sha2.New(api)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(), nil
}

// fixedLengthSum hashes the first length bytes of data.
func fixedLengthSum(api frontend.API, data []uints.U8, length frontend.Variable) ([]uints.U8, error) {
	h, err := sha2.New(api)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.FixedLengthSum(length), nil
}

// assertLimbs asserts that the big-endian digest splits into limbs.
func assertLimbs(api frontend.API, digest []uints.U8, limbs [2]frontend.Variable) {
	const limbBytes = limbBits / 8
	for i := range limbs {
		var acc frontend.Variable = 0
		for _, b := range digest[i*limbBytes : (i+1)*limbBytes] {
			acc = api.Add(api.Mul(acc, 256), b.Val)
		}
		api.AssertIsEqual(acc, limbs[i])
	}
}

// littleEndianBits returns the bits of a big-endian digest, least
// significant first.
func littleEndianBits(api frontend.API, digest []uints.U8) []frontend.Variable {
	out := make([]frontend.Variable, 0, 8*len(digest))
	for i := len(digest) - 1; i >= 0; i-- {
		out = append(out, api.ToBinary(digest[i].Val, 8)...)
	}
	return out
}

// littleEndianBytes returns the n little-endian bytes of v, which must fit
// in them.
func littleEndianBytes(api frontend.API, uapi *uints.BinaryField[uints.U32], v frontend.Variable, n int) []uints.U8 {
	bits := api.ToBinary(v, 8*n)
	out := make([]uints.U8, n)
	for i := range out {
		out[i] = uapi.ByteValueOf(api.FromBinary(bits[8*i : 8*(i+1)]...))
	}
	return out
}

// hexChars returns the lowercase hex encoding of the digest.
func hexChars(api frontend.API, digest []uints.U8) []frontend.Variable {
	out := make([]frontend.Variable, 0, 2*len(digest))
	for _, b := range digest {
		bits := api.ToBinary(b.Val, 8)
		out = append(out, hexChar(api, bits[4:8]), hexChar(api, bits[0:4]))
	}
	return out
}

// hexChar returns the hex digit of a nibble given in little-endian bits.
func hexChar(api frontend.API, nibble []frontend.Variable) frontend.Variable {
	value := api.FromBinary(nibble...)
	// nibble >= 10
	letter := api.Mul(nibble[3], api.Sub(api.Add(nibble[2], nibble[1]), api.Mul(nibble[2], nibble[1])))
	return api.Add(value, '0', api.Mul(letter, 'a'-'0'-10))
}

// prefixMask returns n flags where the first length ones are set. length
// must be at most n.
func prefixMask(api frontend.API, n int, length frontend.Variable) []frontend.Variable {
	ones := make([]frontend.Variable, n)
	for i := range ones {
		ones[i] = 1
	}
	return selector.Partition(api, length, false, ones)
}

// assertDigit asserts that d is in [0, 9].
func assertDigit(api frontend.API, d frontend.Variable) {
	bits := api.ToBinary(d, 4)
	api.AssertIsEqual(api.Mul(bits[3], api.Add(bits[2], bits[1])), 0)
}

// assertNoLeadingZero asserts that the first digit of a number of more than
// one digit is not zero.
func assertNoLeadingZero(api frontend.API, first, digits frontend.Variable) {
	single := api.IsZero(api.Sub(digits, 1))
	api.AssertIsDifferent(api.Select(single, 1, first), 0)
}
