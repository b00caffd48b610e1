package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"

	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

const businessSelectColumns = "id, abn, abn_status, abn_status_from, entity_type_code, entity_type_text, " +
	"entity_name, given_name, family_name, state, postcode, gst_status, gst_from_date, acn, " +
	"record_last_updated, created_at, updated_at"

func scanBusiness(row pgx.Row) (types.Business, error) {
	var b types.Business
	err := row.Scan(
		&b.ID,
		&b.ABN,
		&b.ABNStatus,
		&b.ABNStatusFromDate,
		&b.EntityTypeCode,
		&b.EntityTypeText,
		&b.EntityName,
		&b.GivenName,
		&b.FamilyName,
		&b.State,
		&b.Postcode,
		&b.GSTStatus,
		&b.GSTFromDate,
		&b.ACN,
		&b.RecordLastUpdated,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

// FindByABN fetches one business and its names in two statements on the
// unique abn index. The returned int64 is the wall-clock query time in
// milliseconds; a miss reports storage.ErrNotFound.
func (s *Store) FindByABN(ctx context.Context, abn string) (*types.Business, int64, error) {
	if s.closed.Load() {
		return nil, 0, storage.ErrClosed
	}
	start := time.Now()

	row := s.pool.QueryRow(ctx, "SELECT "+businessSelectColumns+" FROM businesses WHERE abn = $1", abn)
	b, err := scanBusiness(row)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, elapsed, storage.ErrNotFound
		}
		return nil, elapsed, fmt.Errorf("failed to fetch business: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, business_id, name_type, name_text FROM business_names WHERE business_id = $1 ORDER BY id",
		b.ID)
	if err != nil {
		return nil, time.Since(start).Milliseconds(), fmt.Errorf("failed to fetch business names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n types.BusinessName
		if err := rows.Scan(&n.ID, &n.BusinessID, &n.NameType, &n.NameText); err != nil {
			return nil, time.Since(start).Milliseconds(), fmt.Errorf("failed to scan business name: %w", err)
		}
		b.Names = append(b.Names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Since(start).Milliseconds(), fmt.Errorf("failed to read business names: %w", err)
	}

	return &b, time.Since(start).Milliseconds(), nil
}

// SearchNative is the baseline path: a case-insensitive substring match
// on entity_name with no index support for the text predicate. An empty
// term degenerates to FindWithFilters.
func (s *Store) SearchNative(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return s.FindWithFilters(ctx, q)
	}
	where, args := filterPredicates(q.Filters)
	args = append(args, "%"+escapeLike(term)+"%")
	where = append(where, fmt.Sprintf(`entity_name ILIKE $%d ESCAPE '\'`, len(args)))
	return s.runSearch(ctx, where, args, q)
}

// SearchOptimized is the index-backed path: the term becomes a
// conjunctive token query with a prefix marker on the final token,
// dispatched against the search_tokens inverted index. Terms at or below
// the short-query threshold degrade to an anchored prefix match, which
// sidesteps stop-word and stemming loss on one- and two-letter terms. An
// empty term (or one with no usable tokens) degenerates to
// FindWithFilters.
func (s *Store) SearchOptimized(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return s.FindWithFilters(ctx, q)
	}

	where, args := filterPredicates(q.Filters)

	if len([]rune(term)) <= s.shortQueryMaxLength {
		args = append(args, escapeLike(term)+"%")
		where = append(where, fmt.Sprintf(`entity_name ILIKE $%d ESCAPE '\'`, len(args)))
		return s.runSearch(ctx, where, args, q)
	}

	tokenQuery := tsQueryFrom(term)
	if tokenQuery == "" {
		return s.FindWithFilters(ctx, q)
	}
	args = append(args, tokenQuery)
	where = append(where, fmt.Sprintf("search_tokens @@ to_tsquery('english', $%d)", len(args)))
	return s.runSearch(ctx, where, args, q)
}

// FindWithFilters pages through rows matching only the exact-match
// filters. No filters at all is valid and pages the whole corpus.
func (s *Store) FindWithFilters(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	where, args := filterPredicates(q.Filters)
	return s.runSearch(ctx, where, args, q)
}

// runSearch executes the shared pagination envelope: a candidate count
// capped at maxCandidates, then the requested page ordered by
// entity_name. QueryTimeMs spans both statements.
func (s *Store) runSearch(ctx context.Context, where []string, args []any, q types.SearchQuery) (*types.SearchResult, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	start := time.Now()

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	countArgs := append(slices.Clone(args), s.maxCandidates)
	countSQL := fmt.Sprintf(
		"SELECT count(*) FROM (SELECT 1 FROM businesses%s ORDER BY entity_name LIMIT $%d) candidates",
		whereSQL, len(countArgs))

	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}

	pageArgs := append(slices.Clone(args), q.Limit, q.Offset())
	pageSQL := fmt.Sprintf(
		"SELECT %s FROM businesses%s ORDER BY entity_name ASC LIMIT $%d OFFSET $%d",
		businessSelectColumns, whereSQL, len(pageArgs)-1, len(pageArgs))

	rows, err := s.pool.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer rows.Close()

	out := make([]types.Business, 0, q.Limit)
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	return &types.SearchResult{
		Businesses:  out,
		Total:       total,
		QueryTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// filterPredicates renders the exact-match filters as WHERE clauses with
// 1-based placeholders.
func filterPredicates(f types.SearchFilters) ([]string, []any) {
	var where []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("abn_status", f.ABNStatus)
	add("entity_type_code", f.EntityTypeCode)
	add("state", f.State)
	add("postcode", f.Postcode)
	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes a term literal inside a LIKE/ILIKE pattern.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// tsQueryFrom builds the conjunctive token query for to_tsquery: every
// whitespace-separated token except the last is used verbatim, the last
// carries the :* prefix marker so partially typed words still match.
// Characters with meaning in the tsquery grammar are stripped; tokens
// that vanish entirely are dropped. Returns "" when nothing usable
// remains.
func tsQueryFrom(term string) string {
	fields := strings.Fields(term)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if tok := sanitizeToken(f); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return ""
	}
	tokens[len(tokens)-1] += ":*"
	return strings.Join(tokens, " & ")
}

// sanitizeToken keeps letters and digits only, which covers every legal
// character in register names once punctuation is dropped.
func sanitizeToken(tok string) string {
	var b strings.Builder
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
