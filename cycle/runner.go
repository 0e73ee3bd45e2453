// Package cycle runs proof submission cycles: collect the pool's largest swaps
// of the lookback window, prove the IV circuit over them and submit the proof
// to the Brevis gateway.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/brevis-network/brevis-iv-quickstart/brevis"
	"github.com/brevis-network/brevis-iv-quickstart/chain"
	"github.com/brevis-network/brevis-iv-quickstart/circuits"
	"github.com/brevis-network/brevis-iv-quickstart/request"
	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/brevis-network/brevis-iv-quickstart/swaps"
	"github.com/celer-network/goutils/log"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrCycleInFlight = errors.New("a cycle is already running")
	// ErrZeroLiquidity means the pool has no in-range liquidity at the head
	// block, which the circuit cannot divide by.
	ErrZeroLiquidity = errors.New("pool has no in-range liquidity")
)

const (
	DefaultLookback   = approx.Interval1d
	DefaultPeriod     = 24 * time.Hour
	DefaultRetryDelay = 10 * time.Minute
)

// ChainSource is implemented by chain.Provider.
type ChainSource interface {
	SafeHead(ctx context.Context) (approx.Block, error)
	SwapLogs(ctx context.Context, pool common.Address, fromBlock, toBlock uint64) ([]swaps.SwapEvent, error)
	ResolveLogPositions(ctx context.Context, events []swaps.SwapEvent) ([]swaps.SwapEvent, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNum uint64) (common.Hash, error)
}

// RecordStore is implemented by store.CycleStore.
type RecordStore interface {
	Save(rec *store.CycleRecord) error
}

type Config struct {
	ChainId uint64
	Pool    common.Address
	// Lookback names the approximator interval whose swaps go into a proof.
	Lookback string
	// TopK is the number of largest swaps proven, at most the circuit's
	// receipt allocation.
	TopK int
	// Period is the wait after a successful cycle.
	Period time.Duration
	// RetryDelay is the wait after a failed cycle.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Pool == (common.Address{}) {
		c.Pool = circuits.UsdcWeth5BpsPool
	}
	if c.Lookback == "" {
		c.Lookback = DefaultLookback
	}
	if c.TopK <= 0 {
		c.TopK = circuits.MaxReceipts
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

type Runner struct {
	config       Config
	approximator *approx.Approximator
	chain        ChainSource
	builder      *request.Builder
	prover       brevis.Prover
	gateway      brevis.Gateway
	records      RecordStore

	now func() time.Time
	// running keeps a second cycle from starting while one is in flight
	running sync.Mutex
}

func NewRunner(
	config Config,
	approximator *approx.Approximator,
	chainSource ChainSource,
	prover brevis.Prover,
	gateway brevis.Gateway,
	records RecordStore,
) (*Runner, error) {
	config = config.withDefaults()
	if config.Pool != circuits.UsdcWeth5BpsPool {
		return nil, fmt.Errorf("pool %s is not supported, the circuit only proves pool %s", config.Pool.Hex(), circuits.UsdcWeth5BpsPool.Hex())
	}
	if config.TopK > circuits.MaxReceipts {
		return nil, fmt.Errorf("top k %d exceeds the circuit receipt allocation %d", config.TopK, circuits.MaxReceipts)
	}
	if _, err := approximator.BlockTime(config.ChainId); err != nil {
		return nil, err
	}
	if _, err := approximator.IntervalSeconds(config.Lookback); err != nil {
		return nil, err
	}
	return &Runner{
		config:       config,
		approximator: approximator,
		chain:        chainSource,
		builder:      request.NewBuilder(circuits.MaxReceipts, circuits.MaxStorage),
		prover:       prover,
		gateway:      gateway,
		records:      records,
		now:          time.Now,
	}, nil
}

// Run executes cycles back to back until ctx is done, waiting Period after a
// completed cycle and RetryDelay after a failed one. It returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	for {
		rec, err := r.RunOnce(ctx)
		if ctx.Err() != nil {
			log.Infof("cycle runner stopped")
			return ctx.Err()
		}
		delay := r.config.Period
		if err != nil {
			log.Errorf("cycle failed: %s, retrying in %s", err, r.config.RetryDelay)
			delay = r.config.RetryDelay
		} else {
			log.Infof("cycle %s completed with tx %s, next cycle in %s", rec.ID, rec.TxHash, delay)
		}
		select {
		case <-ctx.Done():
			log.Infof("cycle runner stopped")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RunOnce runs a single cycle to completion. The returned record (which may be
// nil if the cycle failed before a request was built) is also saved at every
// status change.
func (r *Runner) RunOnce(ctx context.Context) (*store.CycleRecord, error) {
	if !r.running.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer r.running.Unlock()

	started := r.now()
	rec, err := r.runCycle(ctx, started)
	n := 0
	if rec != nil {
		n = rec.SwapsSelected
	}
	observeCycle(err, n, started, r.now())
	return rec, err
}

func (r *Runner) runCycle(ctx context.Context, started time.Time) (*store.CycleRecord, error) {
	head, err := r.chain.SafeHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("SafeHead err: %w", err)
	}
	from, err := r.lookbackStart(head)
	if err != nil {
		return nil, err
	}
	headNum := uint64(head.Number)
	log.Infof("collecting swaps of pool %s in blocks [%d, %d]", r.config.Pool.Hex(), from, headNum)

	events, err := r.chain.SwapLogs(ctx, r.config.Pool, from, headNum)
	if err != nil {
		return nil, fmt.Errorf("SwapLogs err: %w", err)
	}
	selected, err := r.chain.ResolveLogPositions(ctx, swaps.SelectLargest(events, r.config.TopK))
	if err != nil {
		return nil, fmt.Errorf("ResolveLogPositions err: %w", err)
	}

	slot0, err := r.chain.StorageAt(ctx, r.config.Pool, chain.Slot0Slot, headNum)
	if err != nil {
		return nil, fmt.Errorf("StorageAt slot0 err: %w", err)
	}
	liquidity, err := r.chain.StorageAt(ctx, r.config.Pool, chain.LiquiditySlot, headNum)
	if err != nil {
		return nil, fmt.Errorf("StorageAt liquidity err: %w", err)
	}
	if chain.DecodeLiquidity(liquidity).Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s at block %d", ErrZeroLiquidity, r.config.Pool.Hex(), headNum)
	}
	req, err := r.builder.Build(r.config.Pool, headNum, selected, []request.Storage{
		{Address: r.config.Pool, Slot: chain.Slot0Slot, Value: slot0},
		{Address: r.config.Pool, Slot: chain.LiquiditySlot, Value: liquidity},
	})
	if err != nil {
		return nil, fmt.Errorf("build request err: %w", err)
	}
	digest, err := req.Digest()
	if err != nil {
		return nil, err
	}

	volume := swaps.TotalVolume(selected)
	rec := &store.CycleRecord{
		ID:            digest.Hex(),
		Status:        store.CycleStarted,
		StartedAt:     started,
		UpdatedAt:     started,
		HeadBlock:     headNum,
		FromBlock:     from,
		SwapsFound:    len(events),
		SwapsSelected: len(selected),
		TotalVolume:   volume.String(),
	}
	if iv := circuits.EstimateIV(volume, chain.DecodeLiquidity(liquidity), circuits.FeeTier); iv != nil {
		rec.ExpectedOutput = iv.String()
	}
	log.Infof("cycle %s: %d of %d swaps selected, volume %s, tick %d, expected output %s",
		rec.ID, len(selected), len(events), rec.TotalVolume, chain.DecodeSlot0(slot0).Tick, rec.ExpectedOutput)
	if err = r.save(rec, store.CycleStarted); err != nil {
		return rec, err
	}

	proof, err := r.prover.Prove(ctx, req)
	if err != nil {
		return rec, r.fail(rec, fmt.Errorf("prove err: %w", err))
	}
	if err = r.save(rec, store.CycleProved); err != nil {
		return rec, err
	}

	sub, err := r.gateway.Submit(ctx, proof)
	if err != nil {
		return rec, r.fail(rec, fmt.Errorf("submit err: %w", err))
	}
	rec.QueryHash = sub.QueryHash.Hex()
	rec.Nonce = sub.Nonce
	rec.Fee = bigString(sub.Fee)
	rec.Calldata = common.Bytes2Hex(sub.Calldata)
	if err = r.save(rec, store.CycleSubmitted); err != nil {
		return rec, err
	}

	tx, err := r.gateway.Wait(ctx, sub)
	if err != nil {
		return rec, r.fail(rec, fmt.Errorf("wait err: %w", err))
	}
	rec.TxHash = tx.Hex()
	if err = r.save(rec, store.CycleCompleted); err != nil {
		return rec, err
	}
	return rec, nil
}

// lookbackStart approximates the block one lookback interval before head.
func (r *Runner) lookbackStart(head approx.Block) (uint64, error) {
	blocks, err := r.approximator.Approximate(r.config.ChainId, head.Timestamp, head, r.config.Lookback, 2)
	if err != nil {
		return 0, fmt.Errorf("approximate lookback start err: %w", err)
	}
	if blocks[0].Number < 0 {
		return 0, nil
	}
	return uint64(blocks[0].Number), nil
}

func (r *Runner) save(rec *store.CycleRecord, status store.CycleStatus) error {
	rec.Status = status
	rec.UpdatedAt = r.now()
	if r.records == nil {
		return nil
	}
	if err := r.records.Save(rec); err != nil {
		return fmt.Errorf("save cycle record err: %w", err)
	}
	return nil
}

func (r *Runner) fail(rec *store.CycleRecord, cause error) error {
	rec.Err = cause.Error()
	if err := r.save(rec, store.CycleFailed); err != nil {
		log.Errorf("cycle %s: %s", rec.ID, err)
	}
	return cause
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
