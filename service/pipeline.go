package service

import (
	"fmt"

	"github.com/vocdoni/zk-disclosure/config"
	"github.com/vocdoni/zk-disclosure/guest"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/zkvm"
	"github.com/vocdoni/zk-disclosure/zkvm/snark"
)

// NewPipeline builds the guest program and the proving pipeline described
// by the configuration. Fake receipts use the development engine, the other
// kinds load their keys from the circuit artifacts cache.
func NewPipeline(conf *config.Config) (*prover.Pipeline, error) {
	pub, err := conf.VoterPublicKey()
	if err != nil {
		return nil, err
	}
	g, err := guest.New(guest.Config{PublicKey: pub, Salt: []byte(conf.Salt)})
	if err != nil {
		return nil, err
	}
	kind, err := conf.Kind()
	if err != nil {
		return nil, err
	}
	var engine zkvm.Engine
	if kind == zkvm.KindFake {
		if !conf.DevMode {
			return nil, fmt.Errorf("fake receipts require dev mode")
		}
		log.Warn("running with the development engine, receipts are not proofs")
		engine = zkvm.NewDevEngine()
	} else {
		if !conf.HasArtifacts() {
			return nil, fmt.Errorf("missing %s verifying key hash", kind)
		}
		keys, err := snark.LoadKeys(kind, conf.Artifacts())
		if err != nil {
			return nil, err
		}
		if !keys.CanProve() {
			log.Warnw("keys loaded without proving key, proving will fail", "kind", kind.String())
		}
		opts := []snark.Option{snark.WithKeys(keys)}
		if conf.DevMode {
			opts = append(opts, snark.WithDevMode())
		}
		if engine, err = snark.New(pub, opts...); err != nil {
			return nil, err
		}
	}
	log.Infow("proving pipeline ready", "program", g.ID().String(), "kind", kind.String())
	return prover.New(engine, g.Program(), zkvm.ProverOpts{Kind: kind})
}
