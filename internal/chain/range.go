package chain

import "fmt"

// HeightRange represents an inclusive block height range.
type HeightRange struct {
	From uint64
	To   uint64
}

// SplitHeights splits [from, to] into ranges of at most batchSize heights,
// keeping eth_getLogs requests under provider range limits.
func SplitHeights(from, to, batchSize uint64) ([]HeightRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to height must be >= from height")
	}

	ranges := make([]HeightRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, HeightRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
