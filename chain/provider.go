// Package chain reads the Uniswap V3 pool data that goes into a proof request
// from an EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/brevis-network/brevis-iv-quickstart/swaps"
	"github.com/celer-network/goutils/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrentFetchLimit = 8
	// DefaultMaxLogRange is what most hosted RPC providers accept per
	// eth_getLogs call.
	DefaultMaxLogRange = 10000
)

// Backend is the subset of ethclient.Client used by Provider.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

type ProviderConfig struct {
	// MaxLogRange caps the number of blocks covered by one eth_getLogs call. 0
	// queries the whole range at once.
	MaxLogRange uint64
	// ConcurrentFetchLimit bounds the number of receipts fetched in parallel.
	ConcurrentFetchLimit int
}

type Provider struct {
	ec     Backend
	config ProviderConfig
}

func NewProvider(ec Backend, config ProviderConfig) *Provider {
	if config.ConcurrentFetchLimit <= 0 {
		config.ConcurrentFetchLimit = DefaultConcurrentFetchLimit
	}
	return &Provider{ec: ec, config: config}
}

// Dial connects to rpcUrl and checks that it serves the expected chain.
func Dial(ctx context.Context, rpcUrl string, expectedChainId uint64, config ProviderConfig) (*Provider, error) {
	ec, err := ethclient.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainId, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if chainId.Uint64() != expectedChainId {
		ec.Close()
		return nil, fmt.Errorf("rpc serves chain %d, expected %d", chainId.Uint64(), expectedChainId)
	}
	return NewProvider(ec, config), nil
}

// SafeHead returns the latest block tagged "safe".
func (p *Provider) SafeHead(ctx context.Context) (approx.Block, error) {
	return p.head(ctx, big.NewInt(int64(rpc.SafeBlockNumber)))
}

// LatestHead returns the latest block.
func (p *Provider) LatestHead(ctx context.Context) (approx.Block, error) {
	return p.head(ctx, nil)
}

func (p *Provider) head(ctx context.Context, tag *big.Int) (approx.Block, error) {
	h, err := p.ec.HeaderByNumber(ctx, tag)
	if err != nil {
		return approx.Block{}, fmt.Errorf("HeaderByNumber err: %w", err)
	}
	if h == nil || h.Number == nil {
		return approx.Block{}, fmt.Errorf("invalid block header")
	}
	return approx.Block{Number: h.Number.Int64(), Timestamp: int64(h.Time)}, nil
}

// StorageAt reads one storage word of account at blockNum.
func (p *Provider) StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNum uint64) (common.Hash, error) {
	val, err := p.ec.StorageAt(ctx, account, slot, new(big.Int).SetUint64(blockNum))
	if err != nil {
		return common.Hash{}, fmt.Errorf("StorageAt %s slot %s block %d err: %w", account.Hex(), slot.Hex(), blockNum, err)
	}
	return common.BytesToHash(val), nil
}

// SwapLogs returns the decoded Swap events of pool in [fromBlock, toBlock],
// in chain order.
func (p *Provider) SwapLogs(ctx context.Context, pool common.Address, fromBlock, toBlock uint64) ([]swaps.SwapEvent, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid block range [%d, %d]", fromBlock, toBlock)
	}
	step := p.config.MaxLogRange
	if step == 0 {
		step = toBlock - fromBlock + 1
	}

	var events []swaps.SwapEvent
	for start := fromBlock; start <= toBlock; start += step {
		end := start + step - 1
		if end > toBlock || end < start {
			end = toBlock
		}
		logs, err := p.ec.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{pool},
			Topics:    [][]common.Hash{{swaps.SwapEventID}},
		})
		if err != nil {
			return nil, fmt.Errorf("FilterLogs [%d, %d] err: %w", start, end, err)
		}
		log.Debugf("fetched %d swap logs in blocks [%d, %d]", len(logs), start, end)
		for _, l := range logs {
			if l.Removed {
				continue
			}
			e, err := DecodeSwapLog(l)
			if err != nil {
				return nil, err
			}
			events = append(events, e)
		}
		if end == toBlock {
			break
		}
	}
	return events, nil
}

// ResolveLogPositions fills in the position of each event's log inside its
// transaction receipt. Receipts are fetched once per transaction.
func (p *Provider) ResolveLogPositions(ctx context.Context, events []swaps.SwapEvent) ([]swaps.SwapEvent, error) {
	var mu sync.Mutex
	receipts := make(map[common.Hash]*types.Receipt)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.ConcurrentFetchLimit)
	seen := make(map[common.Hash]bool)
	for _, e := range events {
		txHash := e.TxHash
		if seen[txHash] {
			continue
		}
		seen[txHash] = true
		g.Go(func() error {
			receipt, err := p.ec.TransactionReceipt(gctx, txHash)
			if err != nil {
				return fmt.Errorf("TransactionReceipt %s err: %w", txHash.Hex(), err)
			}
			mu.Lock()
			receipts[txHash] = receipt
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved := make([]swaps.SwapEvent, len(events))
	for i, e := range events {
		pos, err := logPosition(receipts[e.TxHash], e.LogIndex)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", e.TxHash.Hex(), err)
		}
		e.LogPos = pos
		e.LogPosResolved = true
		resolved[i] = e
	}
	return resolved, nil
}

func logPosition(receipt *types.Receipt, logIndex uint) (uint, error) {
	if receipt == nil {
		return 0, fmt.Errorf("missing receipt")
	}
	for pos, l := range receipt.Logs {
		if l.Index == logIndex {
			return uint(pos), nil
		}
	}
	return 0, fmt.Errorf("log index %d not found in receipt", logIndex)
}
