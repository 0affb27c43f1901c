package types

import "errors"

// Error classes shared by every stage of the disclosure proof lifecycle.
// Callers match them with errors.Is, the concrete cause is always wrapped.
var (
	// ErrDecoding is returned for malformed base64, wrong length keys or
	// signatures and malformed input documents.
	ErrDecoding = errors.New("decoding error")
	// ErrInvalidSignature is returned when a signature does not match the
	// message hash and the public key.
	ErrInvalidSignature = errors.New("cryptographic verification failure")
	// ErrProving is returned when the proving engine cannot build a witness
	// or a proof for the guest run.
	ErrProving = errors.New("proving failure")
	// ErrReceiptVerification is returned when a receipt does not verify
	// against the expected program identity.
	ErrReceiptVerification = errors.New("receipt verification failure")
	// ErrStructural is returned when journal bytes cannot be decoded into a
	// disclosure record.
	ErrStructural = errors.New("structural error")
	// ErrUnsupportedProofVariant is returned when a seal is requested for a
	// proof representation that has no seal encoding.
	ErrUnsupportedProofVariant = errors.New("unsupported proof variant")
)
