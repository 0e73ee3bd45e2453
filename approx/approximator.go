package approx

import (
	"fmt"
	"sort"
	"time"
)

const (
	ChainIdMainnet uint64 = 1
	ChainIdSepolia uint64 = 11155111
)

// ChainBlockTimes maps a chain id to its average block time in whole seconds.
type ChainBlockTimes map[uint64]int64

// Intervals maps an interval name such as "1d" to its length in seconds.
type Intervals map[string]int64

const (
	Interval1h  = "1h"
	Interval6h  = "6h"
	Interval12h = "12h"
	Interval1d  = "1d"
)

// DefaultChainBlockTimes returns the block times of the chains this app is
// deployed against. Chains with sub-second block times (arbitrum, unichain)
// cannot be expressed in whole seconds and are left out.
func DefaultChainBlockTimes() ChainBlockTimes {
	return ChainBlockTimes{
		ChainIdMainnet: 12,
		ChainIdSepolia: 12,
	}
}

func DefaultIntervals() Intervals {
	return Intervals{
		Interval1h:  3600,
		Interval6h:  21600,
		Interval12h: 43200,
		Interval1d:  86400,
	}
}

// Approximator resolves approximate blocks for a fixed set of chains and
// named intervals. The tables are copied on construction and never mutated,
// so an Approximator is safe for concurrent use.
type Approximator struct {
	blockTimes ChainBlockTimes
	intervals  Intervals
}

func NewApproximator(blockTimes ChainBlockTimes, intervals Intervals) *Approximator {
	a := &Approximator{
		blockTimes: make(ChainBlockTimes, len(blockTimes)),
		intervals:  make(Intervals, len(intervals)),
	}
	for k, v := range blockTimes {
		a.blockTimes[k] = v
	}
	for k, v := range intervals {
		a.intervals[k] = v
	}
	return a
}

// NewDefaultApproximator uses DefaultChainBlockTimes and DefaultIntervals.
func NewDefaultApproximator() *Approximator {
	return NewApproximator(DefaultChainBlockTimes(), DefaultIntervals())
}

func (a *Approximator) BlockTime(chainId uint64) (int64, error) {
	bt, ok := a.blockTimes[chainId]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnrecognizedChain, chainId)
	}
	return bt, nil
}

func (a *Approximator) IntervalSeconds(name string) (int64, error) {
	s, ok := a.intervals[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown interval %q", ErrInvalidArgument, name)
	}
	return s, nil
}

// IntervalDuration is IntervalSeconds as a time.Duration.
func (a *Approximator) IntervalDuration(name string) (time.Duration, error) {
	s, err := a.IntervalSeconds(name)
	if err != nil {
		return 0, err
	}
	return time.Duration(s) * time.Second, nil
}

// Chains lists the configured chain ids in ascending order.
func (a *Approximator) Chains() []uint64 {
	ids := make([]uint64, 0, len(a.blockTimes))
	for id := range a.blockTimes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Approximate is ApproximateBlocks with the block time and interval looked up
// from the configured tables.
func (a *Approximator) Approximate(
	chainId uint64,
	initialTimestampSec int64,
	ref Block,
	interval string,
	numberOfPeriods int,
) ([]Block, error) {
	if numberOfPeriods < 1 {
		return nil, fmt.Errorf("%w: numberOfPeriods must be >= 1, got %d", ErrInvalidArgument, numberOfPeriods)
	}
	blockTime, err := a.BlockTime(chainId)
	if err != nil {
		return nil, err
	}
	intervalSeconds, err := a.IntervalSeconds(interval)
	if err != nil {
		return nil, err
	}
	return ApproximateBlocks(initialTimestampSec, ref, intervalSeconds, numberOfPeriods, blockTime)
}

// BlockAt estimates the single block at timestampSec.
func (a *Approximator) BlockAt(chainId uint64, timestampSec int64, ref Block) (Block, error) {
	blockTime, err := a.BlockTime(chainId)
	if err != nil {
		return Block{}, err
	}
	// interval is irrelevant for a single period
	blocks, err := ApproximateBlocks(timestampSec, ref, 1, 1, blockTime)
	if err != nil {
		return Block{}, err
	}
	return blocks[0], nil
}
