package distributed

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Merge concatenates per-rank reports in rank order and collapses duplicate
// image identifiers, keeping the first occurrence: the lowest rank wins, and
// within a rank the earlier position wins. Result order is discovery order.
// Empty shards contribute nothing.
//
// Overlapping identifiers can be legitimate (distributed samplers pad uneven
// shards), so overlap is not an error, but it is logged so misaligned shards
// are visible.
func Merge(reports ...Report) Report {
	var merged Report
	seen := make(map[int]struct{})
	duplicates := 0
	for _, rep := range reports {
		for i, id := range rep.ImageIDs {
			if _, ok := seen[id]; ok {
				duplicates++
				continue
			}
			seen[id] = struct{}{}
			merged.ImageIDs = append(merged.ImageIDs, id)
			merged.Results = append(merged.Results, rep.Results[i])
		}
	}
	if duplicates > 0 {
		logrus.WithFields(logrus.Fields{
			"duplicates": duplicates,
			"unique":     len(merged.ImageIDs),
			"ranks":      len(reports),
		}).Warn("collapsed duplicate image ids during merge")
	}
	return merged
}

// AllGatherMerge gathers every rank's report and merges them. Every rank
// computes the same canonical result from the same gathered inputs.
func AllGatherMerge(ctx context.Context, g Gatherer, local Report) (Report, error) {
	reports, err := g.AllGather(ctx, local)
	if err != nil {
		return Report{}, err
	}
	return Merge(reports...), nil
}
