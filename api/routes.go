package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint returns the program identity and the verifier setup
	InfoEndpoint = "/info"
	// VotesEndpoint is the endpoint for submitting a signed vote payload
	VotesEndpoint = "/votes"
	// VoteJobEndpoint returns the status of a prove job
	JobURLParam     = "jobId"
	VoteJobEndpoint = "/votes/{" + JobURLParam + "}"
	// VerifyVoteEndpoint verifies a seal and its journal against a program
	VerifyVoteEndpoint = "/votes/verify"
	// PollVotesEndpoint lists the vote records registered for a poll
	PollURLParam      = "pollId"
	PollVotesEndpoint = "/polls/{" + PollURLParam + "}/votes"
	// NullifiersRootEndpoint returns the root of the nullifier registry
	NullifiersRootEndpoint = "/nullifiers/root"
	// NullifierEndpoint returns the vote record registered for a nullifier
	NullifierURLParam      = "nullifier"
	NullifierEndpoint      = "/nullifiers/{" + NullifierURLParam + "}"
	NullifierProofEndpoint = "/nullifiers/{" + NullifierURLParam + "}/proof"
	// MetricsEndpoint exposes the prometheus metrics
	MetricsEndpoint = "/metrics"
)
