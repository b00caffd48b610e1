package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

// businessColumns are the columns bound by the bulk upsert, in bind
// order. abn leads because it is the conflict key.
var businessColumns = []string{
	"abn",
	"abn_status",
	"abn_status_from",
	"entity_type_code",
	"entity_type_text",
	"entity_name",
	"given_name",
	"family_name",
	"state",
	"postcode",
	"gst_status",
	"gst_from_date",
	"acn",
	"record_last_updated",
}

var nameColumns = []string{"business_id", "name_type", "name_text"}

// upsertSQL builds the multi-row merge-on-conflict insert for n rows.
// xmax is nonzero only for rows that replaced an existing version, which
// is how inserted and updated counts are told apart.
func upsertSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO businesses (")
	b.WriteString(strings.Join(businessColumns, ", "))
	b.WriteString(") VALUES ")
	writeValuePlaceholders(&b, n, len(businessColumns))
	b.WriteString(" ON CONFLICT (abn) DO UPDATE SET ")
	for i, col := range businessColumns[1:] {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
	}
	b.WriteString(", updated_at = now()")
	b.WriteString(" RETURNING (xmax <> 0) AS updated")
	return b.String()
}

// insertNamesSQL builds the unconditional multi-row append for n rows.
func insertNamesSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO business_names (")
	b.WriteString(strings.Join(nameColumns, ", "))
	b.WriteString(") VALUES ")
	writeValuePlaceholders(&b, n, len(nameColumns))
	return b.String()
}

func writeValuePlaceholders(b *strings.Builder, rows, cols int) {
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "$%d", i*cols+j+1)
		}
		b.WriteByte(')')
	}
}

func upsertArgs(rows []types.Business) []any {
	args := make([]any, 0, len(rows)*len(businessColumns))
	for _, r := range rows {
		args = append(args,
			r.ABN,
			r.ABNStatus,
			r.ABNStatusFromDate,
			r.EntityTypeCode,
			r.EntityTypeText,
			r.EntityName,
			r.GivenName,
			r.FamilyName,
			r.State,
			r.Postcode,
			r.GSTStatus,
			r.GSTFromDate,
			r.ACN,
			r.RecordLastUpdated,
		)
	}
	return args
}

func insertNamesArgs(rows []types.BusinessName) []any {
	args := make([]any, 0, len(rows)*len(nameColumns))
	for _, r := range rows {
		args = append(args, r.BusinessID, r.NameType, r.NameText)
	}
	return args
}

// upsertBusinesses runs the chunked merge upsert on q and tallies how
// many rows were created vs replaced.
func (s *Store) upsertBusinesses(ctx context.Context, q querier, rows []types.Business) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	size := chunkRows(defaultChunkRows, len(businessColumns))
	for _, chunk := range chunkSlice(rows, size) {
		res, err := q.Query(ctx, upsertSQL(len(chunk)), upsertArgs(chunk)...)
		if err != nil {
			return stats, fmt.Errorf("failed to upsert businesses: %w", err)
		}
		for res.Next() {
			var updated bool
			if err := res.Scan(&updated); err != nil {
				res.Close()
				return stats, fmt.Errorf("failed to scan upsert result: %w", err)
			}
			if updated {
				stats.Updated++
			} else {
				stats.Inserted++
			}
		}
		if err := res.Err(); err != nil {
			return stats, fmt.Errorf("failed to read upsert results: %w", err)
		}
		res.Close()
	}
	return stats, nil
}

// insertNames appends name rows in parameter-capped chunks.
func (s *Store) insertNames(ctx context.Context, q querier, rows []types.BusinessName) error {
	size := chunkRows(defaultChunkRows, len(nameColumns))
	for _, chunk := range chunkSlice(rows, size) {
		if _, err := q.Exec(ctx, insertNamesSQL(len(chunk)), insertNamesArgs(chunk)...); err != nil {
			return fmt.Errorf("failed to insert business names: %w", err)
		}
	}
	return nil
}

// idsByABNs resolves ABNs to surrogate ids. Unknown ABNs are simply
// absent from the result.
func (s *Store) idsByABNs(ctx context.Context, q querier, abns []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(abns))
	if len(abns) == 0 {
		return ids, nil
	}
	rows, err := q.Query(ctx, "SELECT abn, id FROM businesses WHERE abn = ANY($1)", abns)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve abns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var abn string
		var id int64
		if err := rows.Scan(&abn, &id); err != nil {
			return nil, fmt.Errorf("failed to scan abn mapping: %w", err)
		}
		ids[abn] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read abn mapping: %w", err)
	}
	return ids, nil
}

func (s *Store) deleteNamesByBusinessIDs(ctx context.Context, q querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, "DELETE FROM business_names WHERE business_id = ANY($1)", ids); err != nil {
		return fmt.Errorf("failed to delete business names: %w", err)
	}
	return nil
}

// BulkUpsertBusinesses inserts or merges rows keyed by ABN inside one
// transaction. Empty input is a no-op.
func (s *Store) BulkUpsertBusinesses(ctx context.Context, rows []types.Business) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(rows) == 0 {
		return stats, nil
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stats, err = s.upsertBusinesses(ctx, tx, rows)
	if err != nil {
		return storage.UpsertStats{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.UpsertStats{}, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return stats, nil
}

// BulkInsertNames appends name rows inside one transaction. Empty input
// is a no-op.
func (s *Store) BulkInsertNames(ctx context.Context, rows []types.BusinessName) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.insertNames(ctx, tx, rows); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit name insert: %w", err)
	}
	return nil
}

// GetIDsByABNs resolves a set of ABNs to their surrogate ids.
func (s *Store) GetIDsByABNs(ctx context.Context, abns []string) (map[string]int64, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	return s.idsByABNs(ctx, s.pool, abns)
}

// DeleteNamesByBusinessIDs removes every name row owned by the ids.
func (s *Store) DeleteNamesByBusinessIDs(ctx context.Context, ids []int64) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.deleteNamesByBusinessIDs(ctx, s.pool, ids)
}

// IngestBatch lands one ingestion batch atomically: merge-upsert the
// businesses, then replace the secondary names of every ABN that
// brought names. A failure anywhere rolls the whole batch back.
func (s *Store) IngestBatch(ctx context.Context, businesses []types.Business, names []storage.NameRow) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(businesses) == 0 && len(names) == 0 {
		return stats, nil
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stats, err = s.upsertBusinesses(ctx, tx, businesses)
	if err != nil {
		return storage.UpsertStats{}, err
	}

	if len(names) > 0 {
		abns := distinctABNs(names)
		ids, err := s.idsByABNs(ctx, tx, abns)
		if err != nil {
			return storage.UpsertStats{}, err
		}

		owned := make([]int64, 0, len(ids))
		for _, id := range ids {
			owned = append(owned, id)
		}
		if err := s.deleteNamesByBusinessIDs(ctx, tx, owned); err != nil {
			return storage.UpsertStats{}, err
		}

		rows := make([]types.BusinessName, 0, len(names))
		for _, n := range names {
			id, ok := ids[n.ABN]
			if !ok {
				// Unresolvable ABN; cannot happen if the upsert above
				// succeeded, but a skipped row beats a poisoned batch.
				continue
			}
			rows = append(rows, types.BusinessName{
				BusinessID: id,
				NameType:   n.NameType,
				NameText:   n.NameText,
			})
		}
		if err := s.insertNames(ctx, tx, rows); err != nil {
			return storage.UpsertStats{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.UpsertStats{}, fmt.Errorf("failed to commit ingest batch: %w", err)
	}
	return stats, nil
}

func distinctABNs(names []storage.NameRow) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n.ABN]; ok {
			continue
		}
		seen[n.ABN] = struct{}{}
		out = append(out, n.ABN)
	}
	return out
}
