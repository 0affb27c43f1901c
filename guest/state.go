package guest

import "fmt"

// State is a step of the guest program.
type State int

const (
	StateReadInput State = iota
	StateHashMessage
	StateVerifySignature
	StateDeriveDisclosure
	StateEncodeJournal
	StateCommit
)

func (s State) String() string {
	switch s {
	case StateReadInput:
		return "readInput"
	case StateHashMessage:
		return "hashMessage"
	case StateVerifySignature:
		return "verifySignature"
	case StateDeriveDisclosure:
		return "deriveDisclosure"
	case StateEncodeJournal:
		return "encodeJournal"
	case StateCommit:
		return "commit"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
