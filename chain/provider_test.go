package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/brevis-network/brevis-iv-quickstart/swaps"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usdcWeth5BpsPool = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")

type fakeBackend struct {
	mu sync.Mutex

	headers  map[int64]*types.Header
	storage  map[common.Hash]common.Hash
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt

	filterCalls   [][2]uint64
	receiptCalls  int
	storageBlocks []uint64
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeBackend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	key := int64(rpc.LatestBlockNumber)
	if number != nil {
		key = number.Int64()
	}
	h, ok := f.headers[key]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return h, nil
}

func (f *fakeBackend) StorageAt(_ context.Context, _ common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storageBlocks = append(f.storageBlocks, blockNumber.Uint64())
	v := f.storage[key]
	return v.Bytes(), nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	f.filterCalls = append(f.filterCalls, [2]uint64{from, to})
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("receipt %s not found", txHash.Hex())
	}
	return r, nil
}

func swapLog(t *testing.T, block uint64, txHash common.Hash, index uint, amount0, amount1 int64, tick int64) types.Log {
	data, err := v3PoolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(amount0), big.NewInt(amount1), big.NewInt(1<<40), big.NewInt(1<<50), big.NewInt(tick))
	require.NoError(t, err)
	sender := common.HexToAddress("0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af")
	return types.Log{
		Address:     usdcWeth5BpsPool,
		Topics:      []common.Hash{swaps.SwapEventID, common.BytesToHash(sender.Bytes()), common.BytesToHash(sender.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

func TestDecodeSwapLog(t *testing.T) {
	tx := common.HexToHash("0xf9956ea4bcedfe7031cb3b45d4a44fa19eb70ae819ae724e073c44a60aaefc7f")
	l := swapLog(t, 22131566, tx, 28, -3171955626553, 1564800000000000, -200210)

	e, err := DecodeSwapLog(l)
	require.NoError(t, err)
	assert.Equal(t, usdcWeth5BpsPool, e.Pool)
	assert.Equal(t, uint64(22131566), e.BlockNumber)
	assert.Equal(t, uint(28), e.LogIndex)
	assert.Equal(t, big.NewInt(-3171955626553), e.Amount0)
	assert.Equal(t, big.NewInt(1564800000000000), e.Amount1)
	assert.Equal(t, int32(-200210), e.Tick)
	assert.Equal(t, common.HexToAddress("0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af"), e.Recipient)
	assert.False(t, e.LogPosResolved)

	l.Topics = l.Topics[:1]
	_, err = DecodeSwapLog(l)
	require.Error(t, err)
}

func TestDecodeSlot0(t *testing.T) {
	word := common.HexToHash("0x00010002d302d30140030de900000000000056bac52c49e2000000001151dbd7")
	s := DecodeSlot0(word)

	assert.Equal(t, int32(200169), s.Tick)
	assert.Equal(t, uint16(320), s.ObservationIndex)
	assert.Equal(t, uint16(723), s.ObservationCardinality)
	assert.Equal(t, uint16(723), s.ObservationCardinalityNext)
	assert.Equal(t, uint8(0), s.FeeProtocol)
	assert.True(t, s.Unlocked)
	expected, _ := new(big.Int).SetString("1759084686230269408684228004142039", 10)
	assert.Equal(t, expected, s.SqrtPriceX96)
}

func TestDecodeSlot0_NegativeTick(t *testing.T) {
	// tick -1 is 0xffffff
	word := common.HexToHash("0x000100000100010000ffffff0000000000000000000000000000000000000001")
	assert.Equal(t, int32(-1), DecodeSlot0(word).Tick)
}

func TestDecodeLiquidity(t *testing.T) {
	word := common.HexToHash("0x000000000000000000000000000000000000000000000000f336f69b81b8268e")
	expected, _ := new(big.Int).SetString("17525466147715557006", 10)
	assert.Equal(t, expected, DecodeLiquidity(word))
}

func TestProvider_SafeHeadAndStorage(t *testing.T) {
	f := &fakeBackend{
		headers: map[int64]*types.Header{
			int64(rpc.SafeBlockNumber):   {Number: big.NewInt(22135817), Time: 1742745600},
			int64(rpc.LatestBlockNumber): {Number: big.NewInt(22135850), Time: 1742746000},
		},
		storage: map[common.Hash]common.Hash{
			Slot0Slot:     common.HexToHash("0x00010002d302d30140030de900000000000056bac52c49e2000000001151dbd7"),
			LiquiditySlot: common.HexToHash("0xf336f69b81b8268e"),
		},
	}
	p := NewProvider(f, ProviderConfig{})

	head, err := p.SafeHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, approx.Block{Number: 22135817, Timestamp: 1742745600}, head)

	latest, err := p.LatestHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(22135850), latest.Number)

	word, err := p.StorageAt(context.Background(), usdcWeth5BpsPool, LiquiditySlot, 22135817)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xf336f69b81b8268e"), word)
	assert.Equal(t, []uint64{22135817}, f.storageBlocks)
}

func TestProvider_SwapLogsChunked(t *testing.T) {
	txA := common.HexToHash("0xa")
	txB := common.HexToHash("0xb")
	removed := swapLog(t, 105, txB, 9, 1, 1, 0)
	removed.Removed = true
	f := &fakeBackend{
		logs: []types.Log{
			swapLog(t, 100, txA, 3, 1, -10, 1),
			swapLog(t, 104, txB, 7, 1, 20, 2),
			removed,
			swapLog(t, 109, txB, 12, 1, 30, 3),
		},
	}
	p := NewProvider(f, ProviderConfig{MaxLogRange: 4})

	events, err := p.SwapLogs(context.Background(), usdcWeth5BpsPool, 100, 109)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, [][2]uint64{{100, 103}, {104, 107}, {108, 109}}, f.filterCalls)
	assert.Equal(t, big.NewInt(-10), events[0].Amount1)
	assert.Equal(t, uint(12), events[2].LogIndex)

	_, err = p.SwapLogs(context.Background(), usdcWeth5BpsPool, 10, 9)
	require.Error(t, err)
}

func TestProvider_SwapLogsSingleQuery(t *testing.T) {
	f := &fakeBackend{}
	p := NewProvider(f, ProviderConfig{})
	events, err := p.SwapLogs(context.Background(), usdcWeth5BpsPool, 100, 7300)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, [][2]uint64{{100, 7300}}, f.filterCalls)
}

func TestProvider_ResolveLogPositions(t *testing.T) {
	txA := common.HexToHash("0xa")
	txB := common.HexToHash("0xb")
	f := &fakeBackend{
		receipts: map[common.Hash]*types.Receipt{
			txA: {Logs: []*types.Log{{Index: 26}, {Index: 27}, {Index: 28}}},
			txB: {Logs: []*types.Log{{Index: 0}, {Index: 1}, {Index: 2}, {Index: 3}}},
		},
	}
	p := NewProvider(f, ProviderConfig{ConcurrentFetchLimit: 2})

	events := []swaps.SwapEvent{
		{TxHash: txA, LogIndex: 28},
		{TxHash: txB, LogIndex: 3},
		{TxHash: txB, LogIndex: 1},
	}
	resolved, err := p.ResolveLogPositions(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, uint(2), resolved[0].LogPos)
	assert.Equal(t, uint(3), resolved[1].LogPos)
	assert.Equal(t, uint(1), resolved[2].LogPos)
	for _, e := range resolved {
		assert.True(t, e.LogPosResolved)
	}
	assert.Equal(t, 2, f.receiptCalls)
	assert.False(t, events[0].LogPosResolved)

	_, err = p.ResolveLogPositions(context.Background(), []swaps.SwapEvent{{TxHash: txA, LogIndex: 99}})
	require.Error(t, err)

	_, err = p.ResolveLogPositions(context.Background(), []swaps.SwapEvent{{TxHash: common.HexToHash("0xc")}})
	require.Error(t, err)
}
