package imaging

import "sort"

// SelectBest picks the representative subset of a session's captured images,
// sorted by descending quality. The count follows a fixed step table rather
// than a proportion: 5+ captures keep the top 3, exactly 4 keep 2, 2 or 3
// keep 1, fewer keep nothing beyond what exists. Downstream metadata and UI
// assume these exact counts.
func SelectBest(images []CapturedImage) []CapturedImage {
	if len(images) == 0 {
		return []CapturedImage{}
	}

	sorted := make([]CapturedImage, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Quality > sorted[j].Quality
	})

	count := 1
	switch {
	case len(images) >= 5:
		count = 3
	case len(images) == 4:
		count = 2
	}
	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}
