package extractor

import "runtime"

// Shard is the half-open index range [Start, End) of the link pool handled by one worker
type Shard struct {
	Index int
	Start int
	End   int
}

// Len returns the number of links in the shard
func (s Shard) Len() int {
	return s.End - s.Start
}

// Partition splits k items into w contiguous shards whose sizes differ by at
// most one. The first k%w shards get the extra item. w < 1 is treated as 1.
func Partition(k, w int) []Shard {
	if w < 1 {
		w = 1
	}
	if k < 0 {
		k = 0
	}

	size, extra := k/w, k%w
	shards := make([]Shard, w)
	start := 0
	for i := range shards {
		n := size
		if i < extra {
			n++
		}
		shards[i] = Shard{Index: i, Start: start, End: start + n}
		start += n
	}
	return shards
}

// DefaultParallelism leaves one CPU for the coordinating goroutine
func DefaultParallelism() int {
	return max(1, runtime.NumCPU()-1)
}
