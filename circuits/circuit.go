package circuits

import (
	"github.com/brevis-network/brevis-sdk/sdk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// This circuit estimates the implied volatility of a Uniswap V3 pool from one
// day of swap volume and the liquidity around the current tick:
//
//	iv = 2 * feeTier * sqrt(dailyVolume / tickTvl) * sqrt(365)
//
// The result is left in fee tier units, which is how the target IV is stored
// by the app contract.

const (
	// MaxReceipts is the number of swap receipts a proof can carry. Allocations
	// must be integral multiples of 32.
	MaxReceipts = 32
	// MaxStorage holds slot0 (current tick) and slot4 (liquidity).
	MaxStorage = 32

	// FeeTier of the USDC/WETH 5bps pool, in hundredths of a bip.
	FeeTier = 500

	// sqrt(365) = 19.10..., the circuit only has integer arithmetic
	sqrt365 = 19
)

var (
	// UsdcWeth5BpsPool is the mainnet USDC/WETH 0.05% pool.
	UsdcWeth5BpsPool = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")

	PoolAddress = sdk.ConstUint248(UsdcWeth5BpsPool)
	EventIdSwap = sdk.ParseEventID(
		hexutil.MustDecode("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"))
)

type AppCircuit struct{}

var _ sdk.AppCircuit = &AppCircuit{}

func (c *AppCircuit) Allocate() (maxReceipts, maxStorage, maxTransactions int) {
	return MaxReceipts, MaxStorage, 0
}

func (c *AppCircuit) Define(api *sdk.CircuitAPI, in sdk.DataInput) error {
	u248 := api.Uint248

	swapReceipts := sdk.NewDataStream(api, in.Receipts)

	// every receipt must export amount1 (2nd data field) of a Swap event emitted
	// by the pool
	sdk.AssertEach(swapReceipts, func(r sdk.Receipt) sdk.Uint248 {
		return u248.And(
			u248.IsEqual(r.Fields[0].Contract, PoolAddress),
			u248.IsEqual(r.Fields[0].EventID, EventIdSwap),
			u248.IsZero(r.Fields[0].IsTopic),
			u248.IsEqual(r.Fields[0].Index, sdk.ConstUint248(1)),
		)
	})

	volumes := sdk.Map(swapReceipts, func(r sdk.Receipt) sdk.Uint248 {
		return api.Int248.ABS(api.ToInt248(r.Fields[0].Value))
	})
	dailyVolume := sdk.Sum(volumes)

	storageSlots := sdk.NewDataStream(api, in.StorageSlots)
	slot0 := sdk.GetUnderlying(storageSlots, 0)
	slot4 := sdk.GetUnderlying(storageSlots, 1)

	u248.AssertIsEqual(slot0.Contract, PoolAddress)
	u248.AssertIsEqual(slot4.Contract, PoolAddress)

	// bits 160..184 of slot0 hold `tick`
	tickBits := api.Int248.ToBinary(api.ToInt248(slot0.Value))[160:184]
	currentTick := u248.FromBinary(tickBits...)
	liquidity := api.ToUint248(slot4.Value)

	tickTvl := GetAmount1ForLiquidity(api, currentTick, u248.Add(currentTick, sdk.ConstUint248(1)), liquidity)

	volTvlRatio, _ := u248.Div(dailyVolume, tickTvl)
	sqrtVolTvl := u248.Sqrt(volTvlRatio)

	iv := u248.Mul(
		u248.Mul(sdk.ConstUint248(2), sdk.ConstUint248(FeeTier)),
		u248.Mul(sqrtVolTvl, sdk.ConstUint248(sqrt365)),
	)

	// decoded on-chain as uint256(uint248(bytes31(o[0:31])))
	api.OutputUint(248, iv)
	return nil
}

// GetAmount1ForLiquidity approximates the token1 amount held by liquidity
// between tickA and tickB. It works in tick space rather than sqrt price space
// since the circuit api has no power functions.
// See https://atiselsts.github.io/pdfs/uniswap-v3-liquidity-math.pdf section 2.1.
func GetAmount1ForLiquidity(api *sdk.CircuitAPI, tickA, tickB, liquidity sdk.Uint248) sdk.Uint248 {
	u248 := api.Uint248
	isGreater := u248.IsGreaterThan(tickA, tickB)
	lower := u248.Select(isGreater, tickB, tickA)
	upper := u248.Select(isGreater, tickA, tickB)
	return u248.Mul(liquidity, u248.Sub(upper, lower))
}
