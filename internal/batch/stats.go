package batch

import "time"

// Aggregate folds per-item results into run statistics. Tokens are counted
// for every call made; cost only for successful non-duplicate items.
func Aggregate(results []Result, elapsed time.Duration) Statistics {
	stats := Statistics{
		Total:     len(results),
		TotalTime: elapsed,
	}
	for i := range results {
		r := &results[i]
		if r.Success {
			stats.Succeeded++
			if r.Duplicate {
				stats.Duplicates++
			} else {
				stats.TotalCost += r.Cost
			}
			if r.BatchDuplicate {
				stats.BatchDuplicates++
			}
		} else {
			stats.Failed++
		}
		stats.TotalTokens += r.Usage.Total()
	}
	if stats.Total > 0 {
		stats.AvgTime = elapsed / time.Duration(stats.Total)
	}
	return stats
}
