// Package approx estimates historical block numbers from wall-clock timestamps
// using a fixed average block time per chain.
package approx

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when the requested period count, interval or
	// block time cannot produce a meaningful estimate.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnrecognizedChain is returned when a chain id has no configured block time.
	ErrUnrecognizedChain = errors.New("unrecognized chain")
	// ErrInternalInvariant signals that the generated blocks do not match the
	// requested number of periods.
	ErrInternalInvariant = errors.New("internal invariant violation")
)

// Block is a (number, timestamp) pair. Timestamps are unix seconds.
type Block struct {
	Number    int64 `json:"number"`
	Timestamp int64 `json:"timestamp"`
}

func (b Block) String() string {
	return fmt.Sprintf("#%d@%d", b.Number, b.Timestamp)
}

// ApproximateBlocks generates numberOfPeriods approximate blocks spaced
// intervalSeconds apart, ordered from oldest to newest. The last element is the
// estimated block at initialTimestampSec, derived from ref assuming one block
// every blockTimeSeconds.
func ApproximateBlocks(
	initialTimestampSec int64,
	ref Block,
	intervalSeconds int64,
	numberOfPeriods int,
	blockTimeSeconds int64,
) ([]Block, error) {
	if numberOfPeriods < 1 {
		return nil, fmt.Errorf("%w: numberOfPeriods must be >= 1, got %d", ErrInvalidArgument, numberOfPeriods)
	}
	if intervalSeconds <= 0 {
		return nil, fmt.Errorf("%w: intervalSeconds must be positive, got %d", ErrInvalidArgument, intervalSeconds)
	}
	if blockTimeSeconds <= 0 {
		return nil, fmt.Errorf("%w: blockTimeSeconds must be positive, got %d", ErrInvalidArgument, blockTimeSeconds)
	}

	timeDifference := ref.Timestamp - initialTimestampSec
	blockDifference := floorDiv(timeDifference, blockTimeSeconds)
	anchor := Block{
		Number:    ref.Number - blockDifference,
		Timestamp: initialTimestampSec,
	}

	blocks := make([]Block, numberOfPeriods)
	for i := 0; i < numberOfPeriods; i++ {
		periodTimeDelta := int64(i) * intervalSeconds
		periodBlockDelta := floorDiv(periodTimeDelta, blockTimeSeconds)
		// i == 0 is the newest period and lands at the end
		blocks[numberOfPeriods-1-i] = Block{
			Number:    anchor.Number - periodBlockDelta,
			Timestamp: anchor.Timestamp - periodTimeDelta,
		}
	}

	if len(blocks) != numberOfPeriods {
		return nil, fmt.Errorf("%w: generated blocks (%d) do not match requested number of periods (%d)",
			ErrInternalInvariant, len(blocks), numberOfPeriods)
	}
	return blocks, nil
}

// floorDiv rounds toward negative infinity, unlike Go's truncating division.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
