package metrics

import "sort"

// Bucket is one row of a labelled counter, e.g. a status code or failure class.
type Bucket struct {
	Label string
	Count int
}

// FlattenBuckets converts a label->count map into a sorted slice of rows.
// Rows are sorted by descending count, then by label for stability.
func FlattenBuckets(buckets map[string]int) []Bucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]Bucket, 0, len(buckets))
	for label, count := range buckets {
		rows = append(rows, Bucket{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
