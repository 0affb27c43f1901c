package api

import (
	"net/http"

	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/seal"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

type verifierParameters interface {
	VerifierParameters(kind zkvm.ReceiptKind) (types.Digest, bool)
}

type devModeEngine interface {
	DevMode() bool
}

// info returns the program identity and the verifier setup of the node
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	kind := a.pipeline.Opts().Kind
	info := &Info{
		ProgramID:   a.pipeline.ProgramID(),
		ReceiptKind: kind.String(),
		PublicKey:   secp256k1.EncodePublicKey(a.publicKey),
	}
	switch engine := a.pipeline.Engine().(type) {
	case *zkvm.DevEngine:
		info.DevMode = true
	case devModeEngine:
		info.DevMode = engine.DevMode()
	}
	if vp, ok := a.pipeline.Engine().(verifierParameters); ok {
		if params, ok := vp.VerifierParameters(kind); ok {
			info.VerifierParameters = &params
			info.Selector = params[:seal.SelectorSize]
		}
	}
	httpWriteJSON(w, info)
}
