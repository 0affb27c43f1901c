package zkvm

import (
	"context"
	"fmt"

	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
)

// Session is the result of a successful guest execution.
type Session struct {
	Journal []byte
	Claim   ReceiptClaim
	Witness *Witness
}

// Execute runs the guest program with the input provided. A guest returning
// an error or panicking aborts the run: no session and no journal are
// returned. The error wraps types.ErrProving and the guest error.
func Execute(ctx context.Context, program *Program, input []byte) (session *Session, err error) {
	if program == nil || program.Entry == nil {
		return nil, fmt.Errorf("%w: missing guest program", types.ErrProving)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProving, err)
	}
	env := newEnv(input)
	defer func() {
		if r := recover(); r != nil {
			session = nil
			err = fmt.Errorf("%w: guest %s panicked: %v", types.ErrProving, program.Name, r)
		}
	}()
	if err := program.Entry(env); err != nil {
		return nil, fmt.Errorf("%w: guest %s aborted: %w", types.ErrProving, program.Name, err)
	}
	if !env.committed {
		return nil, fmt.Errorf("%w: guest %s finished without journal", types.ErrProving, program.Name)
	}
	journal := env.journal.Bytes()
	log.Debugw("guest executed", "program", program.Name, "journalSize", len(journal))
	return &Session{
		Journal: journal,
		Claim:   NewReceiptClaim(program.ID(), journal),
		Witness: env.witness,
	}, nil
}
