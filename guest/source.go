package guest

import (
	"embed"
	"sync"

	"github.com/vocdoni/zk-disclosure/circuits/claim"
	"github.com/vocdoni/zk-disclosure/types"
)

const logicTag = "zkdisclosure.GuestLogic"

//go:embed guest.go payload.go state.go
var sources embed.FS

// LogicDigest returns the digest of the guest logic: its source files and
// the source of the circuit that proves it.
var LogicDigest = sync.OnceValue(func() types.Digest {
	guestDigest, circuitDigest := claim.DigestFS(sources), claim.SourceDigest()
	return types.TaggedDigest(logicTag, guestDigest[:], circuitDigest[:])
})
