package postprocess

import (
	"sort"

	"github.com/edgecv/go-detpipe/postprocess/result"
)

// Suppress runs greedy class aware non-maximum suppression over the
// candidate list and returns the survivors ordered by descending score.
//
// Candidates are sorted by score (stable, so equal scores keep their decode
// order), then the highest scoring remaining candidate is emitted and every
// remaining candidate of the same class whose IoU with it reaches the
// threshold is discarded.  Candidates of different classes never suppress
// each other.  A box whose overlap equals the threshold exactly is
// suppressed, the comparison to keep is iou < threshold.
//
// O(n²) worst case, which is fine for the tens of candidates left after
// confidence filtering.  Running Suppress on its own output returns the same
// set unchanged
func Suppress(candidates []result.DetectBox, nmsThreshold float32) []result.DetectBox {

	if len(candidates) == 0 {
		return []result.DetectBox{}
	}

	ordered := make([]result.DetectBox, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	kept := make([]result.DetectBox, 0, len(ordered))
	removed := make([]bool, len(ordered))

	for i := range ordered {

		if removed[i] {
			continue
		}

		kept = append(kept, ordered[i])

		for j := i + 1; j < len(ordered); j++ {

			if removed[j] || ordered[j].Class != ordered[i].Class {
				continue
			}

			if iou(ordered[i].Box, ordered[j].Box) >= nmsThreshold {
				removed[j] = true
			}
		}
	}

	return kept
}
