package cycle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/brevis-network/brevis-iv-quickstart/brevis"
	"github.com/brevis-network/brevis-iv-quickstart/chain"
	"github.com/brevis-network/brevis-iv-quickstart/circuits"
	"github.com/brevis-network/brevis-iv-quickstart/request"
	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/brevis-network/brevis-iv-quickstart/swaps"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testHead   = approx.Block{Number: 22135817, Timestamp: 1743000000}
	slot0Word  = common.HexToHash("0x00010002d302d30140030de900000000000056bac52c49e2000000001151dbd7")
	liquidWord = common.HexToHash("0x000000000000000000000000000000000000000000000000f336f69b81b8268e")
)

type fakeChain struct {
	mu       sync.Mutex
	events   []swaps.SwapEvent
	headErr  error
	noLiquid bool
	from, to uint64
	calls    []string
}

func (c *fakeChain) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeChain) SafeHead(context.Context) (approx.Block, error) {
	c.record("head")
	return testHead, c.headErr
}

func (c *fakeChain) SwapLogs(_ context.Context, pool common.Address, from, to uint64) ([]swaps.SwapEvent, error) {
	c.record("logs")
	c.from, c.to = from, to
	return c.events, nil
}

func (c *fakeChain) ResolveLogPositions(_ context.Context, events []swaps.SwapEvent) ([]swaps.SwapEvent, error) {
	c.record("resolve")
	out := make([]swaps.SwapEvent, len(events))
	for i, e := range events {
		e.LogPos = e.LogIndex
		e.LogPosResolved = true
		out[i] = e
	}
	return out, nil
}

func (c *fakeChain) StorageAt(_ context.Context, _ common.Address, slot common.Hash, blockNum uint64) (common.Hash, error) {
	c.record("storage")
	if slot == chain.Slot0Slot {
		return slot0Word, nil
	}
	if c.noLiquid {
		return common.Hash{}, nil
	}
	return liquidWord, nil
}

type fakeProver struct {
	err error
	req *request.ProofRequest
}

func (p *fakeProver) Prove(_ context.Context, req *request.ProofRequest) (*brevis.Proof, error) {
	p.req = req
	if p.err != nil {
		return nil, p.err
	}
	return &brevis.Proof{}, nil
}

type fakeGateway struct {
	submitErr error
	waitErr   error
}

func (g *fakeGateway) Submit(context.Context, *brevis.Proof) (*brevis.Submission, error) {
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	return &brevis.Submission{
		QueryKey: brevis.QueryKey{QueryHash: common.HexToHash("0xabc"), Nonce: 3},
		Fee:      big.NewInt(42),
		Calldata: []byte{0xde, 0xad},
	}, nil
}

func (g *fakeGateway) Wait(context.Context, *brevis.Submission) (common.Hash, error) {
	return common.HexToHash("0xfeed"), g.waitErr
}

type memRecords struct {
	statuses []store.CycleStatus
	last     store.CycleRecord
}

func (m *memRecords) Save(rec *store.CycleRecord) error {
	m.statuses = append(m.statuses, rec.Status)
	m.last = *rec
	return nil
}

func swapEvent(tx string, logIndex uint, amount1 int64) swaps.SwapEvent {
	return swaps.SwapEvent{
		Pool:        circuits.UsdcWeth5BpsPool,
		BlockNumber: 22130000,
		TxHash:      common.HexToHash(tx),
		LogIndex:    logIndex,
		Amount1:     big.NewInt(amount1),
	}
}

func newTestRunner(t *testing.T, c *fakeChain, p *fakeProver, g *fakeGateway, records *memRecords, config Config) *Runner {
	t.Helper()
	r, err := NewRunner(config, approx.NewDefaultApproximator(), c, p, g, records)
	require.NoError(t, err)
	return r
}

func TestRunOnce(t *testing.T) {
	c := &fakeChain{events: []swaps.SwapEvent{
		swapEvent("0x01", 5, 100),
		swapEvent("0x02", 9, -300),
		swapEvent("0x03", 2, 200),
	}}
	p := &fakeProver{}
	records := &memRecords{}
	r := newTestRunner(t, c, p, &fakeGateway{}, records, Config{ChainId: approx.ChainIdMainnet, TopK: 2})

	rec, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"head", "logs", "resolve", "storage", "storage"}, c.calls)
	assert.Equal(t, uint64(22135817-7200), c.from)
	assert.Equal(t, uint64(22135817), c.to)

	require.NotNil(t, p.req)
	require.Equal(t, 2, p.req.NumReceipts())
	assert.Equal(t, common.HexToHash("0x02"), p.req.Receipts[0].TxHash)
	assert.Equal(t, uint(9), p.req.Receipts[0].Fields[0].LogPos)
	assert.Equal(t, common.HexToHash("0x03"), p.req.Receipts[1].TxHash)
	require.Equal(t, 2, p.req.NumStorages())
	assert.Equal(t, chain.Slot0Slot, p.req.Storages[0].Slot)
	assert.Equal(t, chain.LiquiditySlot, p.req.Storages[1].Slot)

	digest, err := p.req.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest.Hex(), rec.ID)

	assert.Equal(t, []store.CycleStatus{store.CycleStarted, store.CycleProved, store.CycleSubmitted, store.CycleCompleted}, records.statuses)
	assert.Equal(t, store.CycleCompleted, rec.Status)
	assert.Equal(t, 3, rec.SwapsFound)
	assert.Equal(t, 2, rec.SwapsSelected)
	assert.Equal(t, "500", rec.TotalVolume)
	assert.Equal(t, "0", rec.ExpectedOutput)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), rec.QueryHash)
	assert.Equal(t, uint64(3), rec.Nonce)
	assert.Equal(t, "42", rec.Fee)
	assert.Equal(t, "dead", rec.Calldata)
	assert.Equal(t, common.HexToHash("0xfeed").Hex(), rec.TxHash)
	assert.Empty(t, rec.Err)
}

func TestRunOnce_Failures(t *testing.T) {
	for _, tc := range []struct {
		name     string
		prover   *fakeProver
		gateway  *fakeGateway
		statuses []store.CycleStatus
	}{
		{"prove", &fakeProver{err: brevis.ErrFailedToProve}, &fakeGateway{},
			[]store.CycleStatus{store.CycleStarted, store.CycleFailed}},
		{"submit", &fakeProver{}, &fakeGateway{submitErr: errors.New("rejected")},
			[]store.CycleStatus{store.CycleStarted, store.CycleProved, store.CycleFailed}},
		{"wait", &fakeProver{}, &fakeGateway{waitErr: brevis.ErrQueryFailed},
			[]store.CycleStatus{store.CycleStarted, store.CycleProved, store.CycleSubmitted, store.CycleFailed}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			records := &memRecords{}
			r := newTestRunner(t, &fakeChain{}, tc.prover, tc.gateway, records, Config{ChainId: approx.ChainIdMainnet})

			rec, err := r.RunOnce(context.Background())
			require.Error(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, tc.statuses, records.statuses)
			assert.Equal(t, store.CycleFailed, rec.Status)
			assert.Contains(t, rec.Err, tc.name)
		})
	}
}

func TestRunOnce_HeadError(t *testing.T) {
	records := &memRecords{}
	r := newTestRunner(t, &fakeChain{headErr: errors.New("rpc down")}, &fakeProver{}, &fakeGateway{}, records, Config{ChainId: approx.ChainIdMainnet})

	before := testutil.ToFloat64(cyclesTotal.WithLabelValues(resultError))
	rec, err := r.RunOnce(context.Background())
	require.ErrorContains(t, err, "rpc down")
	assert.Nil(t, rec)
	assert.Empty(t, records.statuses)
	assert.Equal(t, before+1, testutil.ToFloat64(cyclesTotal.WithLabelValues(resultError)))
}

func TestRunOnce_InFlight(t *testing.T) {
	r := newTestRunner(t, &fakeChain{}, &fakeProver{}, &fakeGateway{}, &memRecords{}, Config{ChainId: approx.ChainIdMainnet})
	r.running.Lock()
	defer r.running.Unlock()
	_, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrCycleInFlight)
}

func TestNewRunner_Errors(t *testing.T) {
	a := approx.NewDefaultApproximator()
	_, err := NewRunner(Config{ChainId: 999999}, a, &fakeChain{}, &fakeProver{}, &fakeGateway{}, nil)
	require.ErrorIs(t, err, approx.ErrUnrecognizedChain)

	_, err = NewRunner(Config{ChainId: 1, Lookback: "2w"}, a, &fakeChain{}, &fakeProver{}, &fakeGateway{}, nil)
	require.ErrorIs(t, err, approx.ErrInvalidArgument)

	_, err = NewRunner(Config{ChainId: 1, TopK: circuits.MaxReceipts + 1}, a, &fakeChain{}, &fakeProver{}, &fakeGateway{}, nil)
	require.Error(t, err)

	other := common.HexToAddress("0x1111111111111111111111111111111111111111")
	_, err = NewRunner(Config{ChainId: 1, Pool: other}, a, &fakeChain{}, &fakeProver{}, &fakeGateway{}, nil)
	require.ErrorContains(t, err, "not supported")
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, circuits.UsdcWeth5BpsPool, c.Pool)
	assert.Equal(t, approx.Interval1d, c.Lookback)
	assert.Equal(t, circuits.MaxReceipts, c.TopK)
	assert.Equal(t, DefaultPeriod, c.Period)
	assert.Equal(t, DefaultRetryDelay, c.RetryDelay)
}

type countingChain struct {
	fakeChain
	cancel func()
	heads  int
}

func (c *countingChain) SafeHead(ctx context.Context) (approx.Block, error) {
	c.heads++
	if c.heads == 3 {
		c.cancel()
	}
	return approx.Block{}, errors.New("not synced")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &countingChain{cancel: cancel}
	r := newTestRunner(t, &c.fakeChain, &fakeProver{}, &fakeGateway{}, nil, Config{
		ChainId:    approx.ChainIdMainnet,
		RetryDelay: time.Millisecond,
	})
	r.chain = c

	done := make(chan error)
	go func() { done <- r.Run(ctx) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, 3, c.heads)
}

type timedChain struct {
	fakeChain
	cancelAt int
	cancel   func()
	heads    []time.Time
}

func (c *timedChain) SafeHead(ctx context.Context) (approx.Block, error) {
	c.heads = append(c.heads, time.Now())
	if len(c.heads) == c.cancelAt {
		c.cancel()
	}
	return testHead, nil
}

func TestRun_WaitsPeriodAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &timedChain{cancelAt: 2, cancel: cancel}
	records := &memRecords{}
	period := 50 * time.Millisecond
	r := newTestRunner(t, &c.fakeChain, &fakeProver{}, &fakeGateway{}, records, Config{
		ChainId: approx.ChainIdMainnet,
		Period:  period,
		// a failed cycle would stall the test
		RetryDelay: time.Hour,
	})
	r.chain = c

	done := make(chan error)
	go func() { done <- r.Run(ctx) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not run a second cycle")
	}
	require.Len(t, c.heads, 2)
	assert.GreaterOrEqual(t, c.heads[1].Sub(c.heads[0]), period)
	assert.Equal(t, store.CycleCompleted, records.statuses[3])
}

func TestRunOnce_ZeroLiquidity(t *testing.T) {
	records := &memRecords{}
	p := &fakeProver{}
	r := newTestRunner(t, &fakeChain{noLiquid: true}, p, &fakeGateway{}, records, Config{ChainId: approx.ChainIdMainnet})

	rec, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrZeroLiquidity)
	assert.Nil(t, rec)
	assert.Nil(t, p.req)
	assert.Empty(t, records.statuses)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, &store.CycleRecord{
		ID:        "0x01",
		Status:    store.CycleFailed,
		QueryHash: "0xabc",
		Err:       "wait err: query failed",
	})
	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "wait err: query failed")
	assert.Contains(t, out, "nonce")
	assert.NotContains(t, out, "expected output")
}
