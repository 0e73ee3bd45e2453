package brevis

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/brevis-network/brevis-sdk/sdk"
	"github.com/brevis-network/brevis-sdk/sdk/proto/gwproto"
	"github.com/celer-network/goutils/log"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/ethereum/go-ethereum/common"
)

// QueryKey identifies a query at the gateway.
type QueryKey struct {
	QueryHash common.Hash
	Nonce     uint64
}

// Submission is a query whose proof the gateway has accepted.
type Submission struct {
	QueryKey
	// Fee is the value (in wei) to send with the Brevis sendRequest call. It is
	// zero in the partner flow.
	Fee *big.Int
	// Calldata of the sendRequest call that pays the fee.
	Calldata []byte
}

type Gateway interface {
	Submit(ctx context.Context, proof *Proof) (*Submission, error)
	// Wait blocks until the final proof is submitted on-chain and returns the
	// tx hash.
	Wait(ctx context.Context, sub *Submission) (common.Hash, error)
}

type QueryStatus int

const (
	QueryPending QueryStatus = iota
	QueryComplete
	QueryFailed
)

func (s QueryStatus) String() string {
	switch s {
	case QueryComplete:
		return "complete"
	case QueryFailed:
		return "failed"
	default:
		return "pending"
	}
}

type StatusQuerier interface {
	QueryStatus(ctx context.Context, key QueryKey, dstChainId uint64) (QueryStatus, common.Hash, error)
}

// queryApp is the part of sdk.BrevisApp that talks to the gateway.
type queryApp interface {
	prepare(vk plonk.VerifyingKey, w witness.Witness, config GatewayConfig) (*Submission, error)
	submit(proof plonk.Proof) error
}

type sdkQueryApp struct {
	app *sdk.BrevisApp
}

func (a *sdkQueryApp) prepare(vk plonk.VerifyingKey, w witness.Witness, config GatewayConfig) (*Submission, error) {
	calldata, requestId, nonce, fee, err := a.app.PrepareRequest(
		vk, w, config.SrcChainId, config.DstChainId, config.Refundee, config.AppContract,
		config.CallbackGasLimit, gwproto.QueryOption_ZK_MODE.Enum(), config.ApiKey)
	if err != nil {
		return nil, err
	}
	return &Submission{
		QueryKey: QueryKey{QueryHash: requestId, Nonce: nonce},
		Fee:      fee,
		Calldata: calldata,
	}, nil
}

func (a *sdkQueryApp) submit(proof plonk.Proof) error {
	return a.app.SubmitProof(proof)
}

// AppGateway prepares a query for each proof, submits the proof and polls the
// gateway until the final proof lands on the destination chain.
type AppGateway struct {
	config       GatewayConfig
	status       StatusQuerier
	pollInterval time.Duration
}

var _ Gateway = &AppGateway{}

func NewAppGateway(config GatewayConfig, status StatusQuerier, pollInterval time.Duration) *AppGateway {
	if config.CallbackGasLimit == 0 {
		config.CallbackGasLimit = DefaultCallbackGas
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &AppGateway{config: config, status: status, pollInterval: pollInterval}
}

func (g *AppGateway) Submit(ctx context.Context, proof *Proof) (*Submission, error) {
	if proof == nil || proof.app == nil {
		return nil, fmt.Errorf("%w: proof was not produced by a prover", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := proof.app.prepare(proof.VK, proof.Witness, g.config)
	if err != nil {
		return nil, fmt.Errorf("PrepareRequest err: %w", err)
	}
	if g.config.ApiKey == "" {
		log.Infof("query %s nonce %d prepared, fee %s wei must be paid by calling Brevis.sendRequest with calldata %x",
			sub.QueryHash.Hex(), sub.Nonce, sub.Fee, sub.Calldata)
	} else {
		log.Infof("query %s nonce %d prepared through partner flow", sub.QueryHash.Hex(), sub.Nonce)
	}
	if err = proof.app.submit(proof.Proof); err != nil {
		return nil, fmt.Errorf("SubmitProof err: %w", err)
	}
	return sub, nil
}

func (g *AppGateway) Wait(ctx context.Context, sub *Submission) (common.Hash, error) {
	if g.status == nil {
		return common.Hash{}, fmt.Errorf("no status querier configured")
	}
	t := time.NewTicker(g.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			status, tx, err := g.status.QueryStatus(ctx, sub.QueryKey, g.config.DstChainId)
			if err != nil {
				return common.Hash{}, fmt.Errorf("error querying proof status: %w", err)
			}
			switch status {
			case QueryComplete:
				log.Infof("final proof for query %s submitted: tx %s", sub.QueryHash.Hex(), tx.Hex())
				return tx, nil
			case QueryFailed:
				return common.Hash{}, fmt.Errorf("%w: query %s", ErrQueryFailed, sub.QueryHash.Hex())
			default:
				log.Debugf("polling for final proof submission of query %s: status %s", sub.QueryHash.Hex(), status)
			}
		case <-ctx.Done():
			return common.Hash{}, fmt.Errorf("stop waiting for final proof submission: %w", ctx.Err())
		}
	}
}
