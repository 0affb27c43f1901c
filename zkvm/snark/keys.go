package snark

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/test/unsafekzg"
	"github.com/vocdoni/zk-disclosure/circuits"
	"github.com/vocdoni/zk-disclosure/circuits/claim"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

const (
	groth16ParametersTag = "zkdisclosure.Groth16VerifierParameters"
	plonkParametersTag   = "zkdisclosure.PlonkVerifierParameters"
)

// Keys holds the compiled claim circuit and the keys of one proof system.
// Keys loaded without a proving key can only verify.
type Keys struct {
	kind zkvm.ReceiptKind
	ccs  constraint.ConstraintSystem

	groth16PK groth16.ProvingKey
	groth16VK groth16.VerifyingKey
	plonkPK   plonk.ProvingKey
	plonkVK   plonk.VerifyingKey

	verifierParameters types.Digest
}

// Kind returns the receipt kind the keys produce.
func (k *Keys) Kind() zkvm.ReceiptKind {
	return k.kind
}

// VerifierParameters returns the digest of the verifying key.
func (k *Keys) VerifierParameters() types.Digest {
	return k.verifierParameters
}

// CanProve reports whether the keys include the circuit and proving key.
func (k *Keys) CanProve() bool {
	if k.ccs == nil {
		return false
	}
	switch k.kind {
	case zkvm.KindGroth16:
		return k.groth16PK != nil
	case zkvm.KindPlonk:
		return k.plonkPK != nil
	default:
		return false
	}
}

// Compile compiles the claim circuit for the proof system of kind.
func Compile(kind zkvm.ReceiptKind) (constraint.ConstraintSystem, error) {
	setGnarkLogger()
	var builder frontend.NewBuilder
	switch kind {
	case zkvm.KindGroth16:
		builder = r1cs.NewBuilder
	case zkvm.KindPlonk:
		builder = scs.NewBuilder
	default:
		return nil, fmt.Errorf("%w: no circuit for %s receipts", types.ErrUnsupportedProofVariant, kind)
	}
	ccs, err := frontend.Compile(claim.Curve.ScalarField(), builder, claim.Placeholder())
	if err != nil {
		return nil, fmt.Errorf("error compiling claim circuit: %w", err)
	}
	log.Debugw("claim circuit compiled", "kind", kind.String(), "constraints", ccs.GetNbConstraints())
	return ccs, nil
}

// Setup compiles the claim circuit and generates fresh keys for kind.
// PLONK keys use an unsafe development SRS, so they must not protect real
// polls.
func Setup(kind zkvm.ReceiptKind) (*Keys, error) {
	ccs, err := Compile(kind)
	if err != nil {
		return nil, err
	}
	keys := &Keys{kind: kind, ccs: ccs}
	switch kind {
	case zkvm.KindGroth16:
		if keys.groth16PK, keys.groth16VK, err = groth16.Setup(ccs); err != nil {
			return nil, fmt.Errorf("error running groth16 setup: %w", err)
		}
	case zkvm.KindPlonk:
		srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
		if err != nil {
			return nil, fmt.Errorf("error generating kzg srs: %w", err)
		}
		if keys.plonkPK, keys.plonkVK, err = plonk.Setup(ccs, srs, srsLagrange); err != nil {
			return nil, fmt.Errorf("error running plonk setup: %w", err)
		}
	}
	if err := keys.computeVerifierParameters(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Artifacts serializes the keys as circuit artifacts, with their hashes
// set, ready to be stored in the artifacts cache.
func (k *Keys) Artifacts() (*circuits.CircuitArtifacts, error) {
	var pk, vk io.WriterTo
	switch k.kind {
	case zkvm.KindGroth16:
		pk, vk = k.groth16PK, k.groth16VK
	case zkvm.KindPlonk:
		pk, vk = k.plonkPK, k.plonkVK
	}
	if k.ccs == nil || pk == nil || vk == nil {
		return nil, fmt.Errorf("incomplete %s keys", k.kind)
	}
	artifact := func(w io.WriterTo) (*circuits.Artifact, error) {
		var buf bytes.Buffer
		if _, err := w.WriteTo(&buf); err != nil {
			return nil, err
		}
		hash := sha256.Sum256(buf.Bytes())
		return &circuits.Artifact{Hash: hash[:], Content: buf.Bytes()}, nil
	}
	ccsArtifact, err := artifact(k.ccs)
	if err != nil {
		return nil, fmt.Errorf("error encoding circuit definition: %w", err)
	}
	pkArtifact, err := artifact(pk)
	if err != nil {
		return nil, fmt.Errorf("error encoding proving key: %w", err)
	}
	vkArtifact, err := artifact(vk)
	if err != nil {
		return nil, fmt.Errorf("error encoding verifying key: %w", err)
	}
	return circuits.NewCircuitArtifacts(ccsArtifact, pkArtifact, vkArtifact), nil
}

// LoadKeys loads the keys of kind from the artifacts provided. The circuit
// definition and the proving key are optional, without them the keys can
// only verify.
func LoadKeys(kind zkvm.ReceiptKind, artifacts *circuits.CircuitArtifacts) (*Keys, error) {
	if err := artifacts.LoadAll(); err != nil {
		return nil, fmt.Errorf("failed to load %s artifacts: %w", kind, err)
	}
	keys := &Keys{kind: kind}
	switch kind {
	case zkvm.KindGroth16:
		keys.groth16VK = groth16.NewVerifyingKey(claim.Curve)
		if _, err := keys.groth16VK.ReadFrom(bytes.NewReader(artifacts.VerifyingKey())); err != nil {
			return nil, fmt.Errorf("failed to read groth16 verifying key: %w", err)
		}
		if len(artifacts.CircuitDefinition()) > 0 && len(artifacts.ProvingKey()) > 0 {
			keys.ccs = groth16.NewCS(claim.Curve)
			if _, err := keys.ccs.ReadFrom(bytes.NewReader(artifacts.CircuitDefinition())); err != nil {
				return nil, fmt.Errorf("failed to read groth16 circuit definition: %w", err)
			}
			keys.groth16PK = groth16.NewProvingKey(claim.Curve)
			if _, err := keys.groth16PK.ReadFrom(bytes.NewReader(artifacts.ProvingKey())); err != nil {
				return nil, fmt.Errorf("failed to read groth16 proving key: %w", err)
			}
		}
	case zkvm.KindPlonk:
		keys.plonkVK = plonk.NewVerifyingKey(claim.Curve)
		if _, err := keys.plonkVK.ReadFrom(bytes.NewReader(artifacts.VerifyingKey())); err != nil {
			return nil, fmt.Errorf("failed to read plonk verifying key: %w", err)
		}
		if len(artifacts.CircuitDefinition()) > 0 && len(artifacts.ProvingKey()) > 0 {
			keys.ccs = plonk.NewCS(claim.Curve)
			if _, err := keys.ccs.ReadFrom(bytes.NewReader(artifacts.CircuitDefinition())); err != nil {
				return nil, fmt.Errorf("failed to read plonk circuit definition: %w", err)
			}
			keys.plonkPK = plonk.NewProvingKey(claim.Curve)
			if _, err := keys.plonkPK.ReadFrom(bytes.NewReader(artifacts.ProvingKey())); err != nil {
				return nil, fmt.Errorf("failed to read plonk proving key: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: no keys for %s receipts", types.ErrUnsupportedProofVariant, kind)
	}
	if err := keys.computeVerifierParameters(); err != nil {
		return nil, err
	}
	return keys, nil
}

// ExportSolidity writes a Solidity verifier contract for the verifying key.
func (k *Keys) ExportSolidity(w io.Writer) error {
	switch k.kind {
	case zkvm.KindGroth16:
		return k.groth16VK.ExportSolidity(w)
	case zkvm.KindPlonk:
		return k.plonkVK.ExportSolidity(w)
	default:
		return fmt.Errorf("%w: no verifier contract for %s receipts", types.ErrUnsupportedProofVariant, k.kind)
	}
}

func (k *Keys) computeVerifierParameters() error {
	var buf bytes.Buffer
	switch k.kind {
	case zkvm.KindGroth16:
		if _, err := k.groth16VK.WriteRawTo(&buf); err != nil {
			return fmt.Errorf("error encoding groth16 verifying key: %w", err)
		}
		k.verifierParameters = types.TaggedDigest(groth16ParametersTag, buf.Bytes())
	case zkvm.KindPlonk:
		if _, err := k.plonkVK.WriteRawTo(&buf); err != nil {
			return fmt.Errorf("error encoding plonk verifying key: %w", err)
		}
		k.verifierParameters = types.TaggedDigest(plonkParametersTag, buf.Bytes())
	}
	return nil
}
