package swaps

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swap(logIndex uint, amount1 string) SwapEvent {
	v, ok := new(big.Int).SetString(amount1, 10)
	if !ok {
		panic("bad amount " + amount1)
	}
	return SwapEvent{LogIndex: logIndex, Amount1: v}
}

func logIndices(events []SwapEvent) []uint {
	var out []uint
	for _, e := range events {
		out = append(out, e.LogIndex)
	}
	return out
}

func TestSelectLargest(t *testing.T) {
	events := []SwapEvent{
		swap(0, "10"),
		swap(1, "-1564800000000000000000"),
		swap(2, "5"),
		swap(3, "1469250000000000000000"),
		swap(4, "-7"),
	}

	selected := SelectLargest(events, 2)
	require.Equal(t, []uint{1, 3}, logIndices(selected))

	selected = SelectLargest(events, 4)
	require.Equal(t, []uint{1, 3, 0, 4}, logIndices(selected))

	// input order untouched
	require.Equal(t, []uint{0, 1, 2, 3, 4}, logIndices(events))
}

func TestSelectLargest_TiesKeepOriginalOrder(t *testing.T) {
	events := []SwapEvent{
		swap(0, "3"),
		swap(1, "-9"),
		swap(2, "9"),
		swap(3, "-3"),
		swap(4, "9"),
	}
	require.Equal(t, []uint{1, 2, 4, 0, 3}, logIndices(SelectLargest(events, 5)))
}

func TestSelectLargest_ExactMagnitudes(t *testing.T) {
	// these two differ only beyond float64 precision
	events := []SwapEvent{
		swap(0, "1000000000000000000001"),
		swap(1, "-1000000000000000000002"),
	}
	require.Equal(t, []uint{1, 0}, logIndices(SelectLargest(events, 2)))
}

func TestSelectLargest_Bounds(t *testing.T) {
	events := []SwapEvent{swap(0, "1"), swap(1, "2")}
	assert.Nil(t, SelectLargest(events, 0))
	assert.Nil(t, SelectLargest(events, -1))
	assert.Nil(t, SelectLargest(nil, 3))
	assert.Len(t, SelectLargest(events, 10), 2)
}

func TestTotalVolume(t *testing.T) {
	events := []SwapEvent{swap(0, "-10"), swap(1, "15"), {LogIndex: 2}}
	assert.Equal(t, big.NewInt(25), TotalVolume(events))
	assert.Equal(t, big.NewInt(0), TotalVolume(nil))
}
