package api

import (
	"github.com/google/uuid"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/types"
)

// Info describes the program proven by the node and its verifier setup.
type Info struct {
	ProgramID          types.Digest   `json:"programId"`
	ReceiptKind        string         `json:"receiptKind"`
	PublicKey          string         `json:"publicKey"`
	VerifierParameters *types.Digest  `json:"verifierParameters,omitempty"`
	Selector           types.HexBytes `json:"selector,omitempty"`
	DevMode            bool           `json:"devMode"`
}

// Vote is a signed vote payload submitted to be proven. The signature is the
// base64 encoding of the signature of the SHA-256 hash of the message.
type Vote struct {
	Signature string `json:"signature"`
	Message   string `json:"message"`
	PollID    uint64 `json:"pollId"`
}

// NewJob is the response to a vote submission.
type NewJob struct {
	JobID uuid.UUID `json:"jobId"`
}

// JobStatus is the state of a prove job. Once done, it includes the
// disclosed record with its seal and journal.
type JobStatus struct {
	JobID      uuid.UUID          `json:"jobId"`
	Status     storage.JobStatus  `json:"status"`
	Error      string             `json:"error,omitempty"`
	PollID     uint64             `json:"pollId"`
	Nullifier  string             `json:"nullifier,omitempty"`
	Record     *disclosure.Record `json:"record,omitempty"`
	Seal       types.HexBytes     `json:"seal,omitempty"`
	Journal    types.HexBytes     `json:"journal,omitempty"`
	CreatedAt  int64              `json:"createdAt"`
	FinishedAt int64              `json:"finishedAt,omitempty"`
}

// VerifyVote is a seal and its journal to verify. The program identity
// defaults to the one proven by the node.
type VerifyVote struct {
	Seal      types.HexBytes `json:"seal"`
	Journal   types.HexBytes `json:"journal"`
	ProgramID *types.Digest  `json:"programId,omitempty"`
}

// VerifiedVote is the disclosure record attested by a verified seal.
type VerifiedVote struct {
	ProgramID types.Digest       `json:"programId"`
	Record    *disclosure.Record `json:"record"`
}

// PollVotes lists the vote records registered for a poll.
type PollVotes struct {
	PollID uint64                `json:"pollId"`
	Votes  []*storage.VoteRecord `json:"votes"`
}

// NullifiersRoot is the root of the nullifier registry.
type NullifiersRoot struct {
	Root  types.HexBytes `json:"root"`
	Count int            `json:"count"`
}
