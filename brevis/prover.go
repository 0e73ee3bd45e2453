package brevis

import (
	"context"
	"fmt"
	"sync"

	"github.com/brevis-network/brevis-iv-quickstart/request"
	"github.com/brevis-network/brevis-sdk/sdk"
	"github.com/celer-network/goutils/log"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/ethereum/go-ethereum/common"
)

// Proof is a verified app circuit proof together with the state needed to turn
// it into a gateway query.
type Proof struct {
	RequestDigest common.Hash
	Proof         plonk.Proof
	Witness       witness.Witness
	VK            plonk.VerifyingKey

	app queryApp
}

type Prover interface {
	Prove(ctx context.Context, req *request.ProofRequest) (*Proof, error)
}

// LocalProver proves in process with keys loaded from (or compiled into) the
// setup dir. Proving is serialized since each proof takes most of the machine.
type LocalProver struct {
	config     ProverConfig
	newCircuit func() sdk.AppCircuit

	ccs    constraint.ConstraintSystem
	pk     plonk.ProvingKey
	vk     plonk.VerifyingKey
	vkHash []byte

	mu sync.Mutex
}

var _ Prover = &LocalProver{}

// NewLocalProver reads the circuit setup from config.SetupDir, compiling the
// circuit first if there is none.
func NewLocalProver(newCircuit func() sdk.AppCircuit, config ProverConfig) (*LocalProver, error) {
	ccs, pk, vk, vkHash, err := sdk.ReadSetupFrom(newCircuit(), config.GetSetupDir())
	if err != nil {
		log.Warnf("cannot read setup from %s (%s), compiling circuit", config.GetSetupDir(), err)
		ccs, pk, vk, vkHash, err = Compile(newCircuit(), config)
		if err != nil {
			return nil, err
		}
	}
	return &LocalProver{
		config:     config,
		newCircuit: newCircuit,
		ccs:        ccs,
		pk:         pk,
		vk:         vk,
		vkHash:     vkHash,
	}, nil
}

// Compile compiles the circuit and runs the setup, saving the outputs to the
// setup dir and the downloaded SRS to the srs dir.
func Compile(circuit sdk.AppCircuit, config ProverConfig) (constraint.ConstraintSystem, plonk.ProvingKey, plonk.VerifyingKey, []byte, error) {
	ccs, pk, vk, vkHash, err := sdk.Compile(circuit, config.GetSetupDir(), config.GetSrsDir())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("sdk.Compile err: %w", err)
	}
	log.Infof("circuit compiled, vk hash %x, %d constraints", vkHash, ccs.GetNbConstraints())
	return ccs, pk, vk, vkHash, nil
}

func (p *LocalProver) VKHash() []byte {
	return p.vkHash
}

func (p *LocalProver) Prove(ctx context.Context, req *request.ProofRequest) (*Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest, err := req.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	app, err := sdk.NewBrevisApp(p.config.ChainId, p.config.RpcURL, p.config.GetSetupDir(), p.config.gatewayOverride()...)
	if err != nil {
		return nil, fmt.Errorf("sdk.NewBrevisApp err: %w", err)
	}
	req.ApplyTo(app)

	assignment := p.newCircuit()
	in, err := app.BuildCircuitInput(assignment)
	if err != nil {
		return nil, fmt.Errorf("%w: BuildCircuitInput: %s", ErrInvalidInput, err)
	}
	fullWitness, publicWitness, err := sdk.NewFullWitness(assignment, in)
	if err != nil {
		return nil, fmt.Errorf("%w: NewFullWitness: %s", ErrInvalidCustomInput, err)
	}

	log.Infof("proving request %s: %d receipts, %d storage slots", digest.Hex(), req.NumReceipts(), req.NumStorages())
	proof, err := sdk.Prove(p.ccs, p.pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFailedToProve, err)
	}
	if err = sdk.Verify(p.vk, publicWitness, proof); err != nil {
		return nil, fmt.Errorf("%w: proof does not verify: %s", ErrFailedToProve, err)
	}

	return &Proof{
		RequestDigest: digest,
		Proof:         proof,
		Witness:       fullWitness,
		VK:            p.vk,
		app:           &sdkQueryApp{app: app},
	}, nil
}
