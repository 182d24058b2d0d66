package models

// BatchItemResult is the per-item outcome of a batch operation.
type BatchItemResult[T any] struct {
	OK     bool   `json:"ok"`
	ItemID string `json:"item_id"`
	Result T      `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult aggregates per-item outcomes. Items apply independently: one
// item's failure never rolls back or blocks the others.
type BatchResult[T any] struct {
	Total    int                  `json:"total_count"`
	Success  int                  `json:"success_count"`
	Failures int                  `json:"failure_count"`
	Results  []BatchItemResult[T] `json:"results"`
}

// Append records one item outcome and updates the counters.
func (b *BatchResult[T]) Append(r BatchItemResult[T]) {
	b.Results = append(b.Results, r)
	b.Total++
	if r.OK {
		b.Success++
	} else {
		b.Failures++
	}
}
