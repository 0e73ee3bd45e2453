// Package swaps models Uniswap V3 Swap events and picks the subset that fits
// into a fixed-size proof request.
package swaps

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// SwapEventID is topic0 of
// Swap(address indexed sender, address indexed recipient, int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick)
var SwapEventID = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")

// Amount1FieldIndex is the position of amount1 in the RLP decoded (non-topic)
// data of a Swap log.
const Amount1FieldIndex = 1

type SwapEvent struct {
	Pool        common.Address `json:"pool"`
	BlockNumber uint64         `json:"block_number"`
	TxHash      common.Hash    `json:"tx_hash"`
	TxIndex     uint           `json:"tx_index"`
	// LogIndex is the index of the log in the block
	LogIndex uint `json:"log_index"`
	// LogPos is the position of the log in its transaction receipt. This is what
	// the prover expects, and it is only known after the receipt is fetched.
	LogPos         uint `json:"log_pos"`
	LogPosResolved bool `json:"log_pos_resolved"`

	Sender       common.Address `json:"sender"`
	Recipient    common.Address `json:"recipient"`
	Amount0      *big.Int       `json:"amount0"`
	Amount1      *big.Int       `json:"amount1"`
	SqrtPriceX96 *big.Int       `json:"sqrt_price_x96"`
	Liquidity    *big.Int       `json:"liquidity"`
	Tick         int32          `json:"tick"`
}

// SelectLargest returns at most k events ordered by |amount1| descending.
// Events with equal magnitude keep their original relative order. The input
// slice is not modified.
func SelectLargest(events []SwapEvent, k int) []SwapEvent {
	if k <= 0 || len(events) == 0 {
		return nil
	}
	indices := make([]int, len(events))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return absCmp(events[indices[a]].Amount1, events[indices[b]].Amount1) > 0
	})
	if k > len(indices) {
		k = len(indices)
	}
	selected := make([]SwapEvent, k)
	for i := 0; i < k; i++ {
		selected[i] = events[indices[i]]
	}
	return selected
}

// TotalVolume sums |amount1| over the events.
func TotalVolume(events []SwapEvent) *big.Int {
	total := new(big.Int)
	for _, e := range events {
		if e.Amount1 == nil {
			continue
		}
		total.Add(total, new(big.Int).Abs(e.Amount1))
	}
	return total
}

func absCmp(x, y *big.Int) int {
	if x == nil {
		x = new(big.Int)
	}
	if y == nil {
		y = new(big.Int)
	}
	return x.CmpAbs(y)
}
