package shard

import "math"

// Distribution summarizes how a batch of ids spreads across shards.
// Used to validate evenness of the hash functions over real id samples.
type Distribution struct {
	Counts []int
	StdDev float64
	Spread int // max count minus min count
}

// Measure assigns each id via fn and tallies per-shard counts.
// Ids that fn rejects are skipped.
func Measure(ids []string, shards int, fn func(string) (int, error)) Distribution {
	counts := make([]int, shards)
	total := 0
	for _, id := range ids {
		n, err := fn(id)
		if err != nil {
			continue
		}
		counts[n]++
		total++
	}

	mean := float64(total) / float64(shards)
	var sumSq float64
	minC, maxC := counts[0], counts[0]
	for _, c := range counts {
		d := float64(c) - mean
		sumSq += d * d
		if c < minC {
			minC = c
		}
		if c > maxC {
			maxC = c
		}
	}

	return Distribution{
		Counts: counts,
		StdDev: math.Sqrt(sumSq / float64(shards)),
		Spread: maxC - minC,
	}
}
