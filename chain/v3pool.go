package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/brevis-network/brevis-iv-quickstart/swaps"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Storage layout of a UniswapV3Pool, as reported by `cast storage`.
var (
	Slot0Slot     = common.HexToHash("0x0")
	LiquiditySlot = common.HexToHash("0x4")
)

const v3PoolABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"sender","type":"address"},
    {"indexed":true,"internalType":"address","name":"recipient","type":"address"},
    {"indexed":false,"internalType":"int256","name":"amount0","type":"int256"},
    {"indexed":false,"internalType":"int256","name":"amount1","type":"int256"},
    {"indexed":false,"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
    {"indexed":false,"internalType":"uint128","name":"liquidity","type":"uint128"},
    {"indexed":false,"internalType":"int24","name":"tick","type":"int24"}],
   "name":"Swap","type":"event"},
  {"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"fee","outputs":[{"internalType":"uint24","name":"","type":"uint24"}],"stateMutability":"view","type":"function"}
]`

var v3PoolABI = mustParseABI(v3PoolABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid v3 pool abi: %s", err.Error()))
	}
	return parsed
}

// DecodeSwapLog decodes a raw Swap log emitted by a UniswapV3Pool.
func DecodeSwapLog(l types.Log) (swaps.SwapEvent, error) {
	if len(l.Topics) != 3 || l.Topics[0] != swaps.SwapEventID {
		return swaps.SwapEvent{}, fmt.Errorf("log %d of tx %s is not a Swap event", l.Index, l.TxHash.Hex())
	}
	values, err := v3PoolABI.Unpack("Swap", l.Data)
	if err != nil {
		return swaps.SwapEvent{}, fmt.Errorf("unpack Swap data of tx %s: %w", l.TxHash.Hex(), err)
	}
	if len(values) != 5 {
		return swaps.SwapEvent{}, fmt.Errorf("unexpected Swap data field count %d", len(values))
	}
	amount0, ok0 := values[0].(*big.Int)
	amount1, ok1 := values[1].(*big.Int)
	sqrtPrice, ok2 := values[2].(*big.Int)
	liquidity, ok3 := values[3].(*big.Int)
	tick, ok4 := values[4].(*big.Int)
	if !(ok0 && ok1 && ok2 && ok3 && ok4) {
		return swaps.SwapEvent{}, fmt.Errorf("unexpected Swap data field types in tx %s", l.TxHash.Hex())
	}
	return swaps.SwapEvent{
		Pool:         l.Address,
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
		TxIndex:      l.TxIndex,
		LogIndex:     l.Index,
		Sender:       common.BytesToAddress(l.Topics[1].Bytes()),
		Recipient:    common.BytesToAddress(l.Topics[2].Bytes()),
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         int32(tick.Int64()),
	}, nil
}

// Slot0 is the unpacked content of storage slot 0 of a UniswapV3Pool.
type Slot0 struct {
	SqrtPriceX96               *big.Int
	Tick                       int32
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}

// DecodeSlot0 unpacks the slot0 storage word. Solidity packs the struct from
// the least significant bit: sqrtPriceX96 (160 bits), tick (int24),
// observationIndex, observationCardinality, observationCardinalityNext
// (uint16 each), feeProtocol (uint8), unlocked (bool).
func DecodeSlot0(word common.Hash) Slot0 {
	b := word.Bytes()
	tick := int32(uint32(b[9])<<16 | uint32(b[10])<<8 | uint32(b[11]))
	if tick&(1<<23) != 0 {
		tick -= 1 << 24
	}
	return Slot0{
		SqrtPriceX96:               new(big.Int).SetBytes(b[12:32]),
		Tick:                       tick,
		ObservationIndex:           uint16(b[7])<<8 | uint16(b[8]),
		ObservationCardinality:     uint16(b[5])<<8 | uint16(b[6]),
		ObservationCardinalityNext: uint16(b[3])<<8 | uint16(b[4]),
		FeeProtocol:                b[2],
		Unlocked:                   b[1] != 0,
	}
}

// DecodeLiquidity returns the uint128 liquidity stored in slot 4.
func DecodeLiquidity(word common.Hash) *big.Int {
	return new(big.Int).SetBytes(word.Bytes()[16:32])
}
