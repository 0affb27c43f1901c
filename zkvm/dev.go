package zkvm

import (
	"context"
	"fmt"

	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
)

// DevEngine executes guests without proving them. Its receipts are Fake
// receipts and are only accepted by engines running in dev mode.
type DevEngine struct{}

// NewDevEngine returns a new DevEngine.
func NewDevEngine() *DevEngine {
	return &DevEngine{}
}

// Prove executes the program and returns a Fake receipt of the run. The
// options are ignored.
func (*DevEngine) Prove(ctx context.Context, program *Program, input []byte, opts ProverOpts) (*Receipt, error) {
	session, err := Execute(ctx, program, input)
	if err != nil {
		return nil, err
	}
	log.Debugw("dev mode receipt, the guest execution is not proven",
		"program", program.Name, "requestedKind", opts.Kind.String())
	return &Receipt{
		Inner:   &FakeReceipt{Claim: session.Claim},
		Journal: session.Journal,
	}, nil
}

// Verify checks the claim of a Fake receipt. Any other kind of receipt is
// rejected.
func (*DevEngine) Verify(receipt *Receipt, programID types.Digest) error {
	return VerifyFake(receipt, programID)
}

// VerifierParameters reports that the dev engine has no proof system.
func (*DevEngine) VerifierParameters(ReceiptKind) (types.Digest, bool) {
	return types.Digest{}, false
}

// VerifyFake checks the claim of a Fake receipt against the program
// identity and the receipt journal.
func VerifyFake(receipt *Receipt, programID types.Digest) error {
	kind, err := receipt.Kind()
	if err != nil {
		return err
	}
	fake, ok := receipt.Inner.(*FakeReceipt)
	if !ok {
		return fmt.Errorf("%w: expected a fake receipt, got %s", types.ErrReceiptVerification, kind)
	}
	return CheckClaim(fake.Claim, receipt.Journal, programID)
}
