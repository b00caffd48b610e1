package postgres

// maxStatementParams is PostgreSQL's wire-protocol cap on bound
// parameters per statement. Bulk statements are chunked so their
// parameter count stays strictly below it.
const maxStatementParams = 65535

// defaultChunkRows bounds single-statement latency on remote stores;
// the parameter cap alone would allow far larger chunks.
const defaultChunkRows = 1000

// chunkRows returns the rows-per-statement for a multi-row statement
// binding cols parameters per row: the preferred size, lowered if needed
// to keep rows*cols under the parameter cap.
func chunkRows(preferred, cols int) int {
	if preferred < 1 {
		preferred = defaultChunkRows
	}
	if cols < 1 {
		return preferred
	}
	limit := (maxStatementParams - 1) / cols
	if limit < 1 {
		limit = 1
	}
	if preferred < limit {
		return preferred
	}
	return limit
}

// chunkSlice splits rows into consecutive sub-slices of at most size.
func chunkSlice[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	out := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
