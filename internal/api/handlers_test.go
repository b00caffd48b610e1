package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesearch/vantage/internal/ingest"
	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

// stubRepo serves canned data and records the query each search path
// received.
type stubRepo struct {
	business  *types.Business
	corpus    []types.Business
	total     int
	findErr   error
	searchErr error

	lastPath  string
	lastQuery types.SearchQuery
}

func (s *stubRepo) FindByABN(_ context.Context, abn string) (*types.Business, int64, error) {
	if s.findErr != nil {
		return nil, 1, s.findErr
	}
	if s.business == nil || s.business.ABN != abn {
		return nil, 1, storage.ErrNotFound
	}
	return s.business, 1, nil
}

func (s *stubRepo) search(path string, q types.SearchQuery) (*types.SearchResult, error) {
	s.lastPath = path
	s.lastQuery = q
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	start := q.Offset()
	if start > len(s.corpus) {
		start = len(s.corpus)
	}
	end := start + q.Limit
	if end > len(s.corpus) {
		end = len(s.corpus)
	}
	total := s.total
	if total == 0 {
		total = len(s.corpus)
	}
	return &types.SearchResult{
		Businesses:  append([]types.Business{}, s.corpus[start:end]...),
		Total:       total,
		QueryTimeMs: 1,
	}, nil
}

func (s *stubRepo) SearchNative(_ context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	return s.search("native", q)
}

func (s *stubRepo) SearchOptimized(_ context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	return s.search("optimized", q)
}

func (s *stubRepo) FindWithFilters(_ context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	return s.search("filters", q)
}

func (s *stubRepo) BulkUpsertBusinesses(context.Context, []types.Business) (storage.UpsertStats, error) {
	return storage.UpsertStats{}, nil
}
func (s *stubRepo) BulkInsertNames(context.Context, []types.BusinessName) error { return nil }
func (s *stubRepo) GetIDsByABNs(context.Context, []string) (map[string]int64, error) {
	return nil, nil
}
func (s *stubRepo) DeleteNamesByBusinessIDs(context.Context, []int64) error { return nil }
func (s *stubRepo) IngestBatch(context.Context, []types.Business, []storage.NameRow) (storage.UpsertStats, error) {
	return storage.UpsertStats{}, nil
}
func (s *stubRepo) Ping(context.Context) error { return nil }
func (s *stubRepo) Close()                     {}

func stubStarter(done ingest.Done, err error) IngestStarter {
	return func(context.Context, string) (*ingest.Run, error) {
		if err != nil {
			return nil, err
		}
		ch := make(chan ingest.Event, 1)
		ch <- done
		close(ch)
		return &ingest.Run{ID: "run-1", Events: ch}, nil
	}
}

func newTestServer(repo *stubRepo, starter IngestStarter) *Server {
	if starter == nil {
		starter = stubStarter(ingest.Done{}, nil)
	}
	return New(repo, starter, Config{CORSOrigins: []string{"*"}})
}

func doRequest(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed), "body: %s", rec.Body.String())
	return rec, parsed
}

func corpusOf(n int, state string) []types.Business {
	out := make([]types.Business, n)
	for i := range out {
		st := state
		out[i] = types.Business{
			ID:             int64(i + 1),
			ABN:            fmt.Sprintf("%011d", i+1),
			ABNStatus:      "ACT",
			EntityTypeCode: "PRV",
			EntityName:     fmt.Sprintf("ENTITY %04d", i),
			State:          &st,
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	rec, body := doRequest(t, newTestServer(&stubRepo{}, nil), http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "timestamp")
}

func TestFindByABNHit(t *testing.T) {
	trading := "VANTAGE DIRECTORY"
	repo := &stubRepo{business: &types.Business{
		ABN:        "53004085616",
		EntityName: "VANTAGE SEARCH PTY LTD",
		Names: []types.BusinessName{
			{NameType: types.NameTypeTrading, NameText: trading},
			{NameType: types.NameTypeBusiness, NameText: "VANTAGE SEARCH"},
		},
	}}

	rec, body := doRequest(t, newTestServer(repo, nil), http.MethodGet, "/api/v1/businesses/53004085616", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "VANTAGE SEARCH PTY LTD", data["entityName"])
	assert.Len(t, data["businessNames"], 2)
	meta := body["meta"].(map[string]any)
	assert.EqualValues(t, 1, meta["queryTimeMs"])
}

func TestFindByABNMiss(t *testing.T) {
	rec, body := doRequest(t, newTestServer(&stubRepo{}, nil), http.MethodGet, "/api/v1/businesses/00000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Business not found: 00000000000", body["message"])
}

func TestSearchFilterPaging(t *testing.T) {
	repo := &stubRepo{corpus: corpusOf(100, "NSW")}
	rec, body := doRequest(t, newTestServer(repo, nil), http.MethodGet,
		"/api/v1/businesses/search?state=NSW&page=2&limit=20", "")
	require.Equal(t, http.StatusOK, rec.Code)

	p := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, p["page"])
	assert.EqualValues(t, 20, p["limit"])
	assert.EqualValues(t, 100, p["total"])
	assert.EqualValues(t, 5, p["totalPages"])
	assert.Len(t, body["data"], 20)

	assert.Equal(t, "NSW", repo.lastQuery.Filters.State)
	assert.Equal(t, "native", repo.lastPath)
}

func TestSearchCapSaturation(t *testing.T) {
	// 10k true matches, candidate cap 5000: total saturates at the cap.
	repo := &stubRepo{corpus: corpusOf(100, "VIC"), total: 5000}
	rec, body := doRequest(t, newTestServer(repo, nil), http.MethodGet,
		"/api/v1/businesses/search?q=entity&limit=25", "")
	require.Equal(t, http.StatusOK, rec.Code)

	p := body["pagination"].(map[string]any)
	assert.EqualValues(t, 5000, p["total"])
	assert.EqualValues(t, 200, p["totalPages"])
	assert.Len(t, body["data"], 25)
}

func TestSearchTechniqueDispatch(t *testing.T) {
	repo := &stubRepo{}
	srv := newTestServer(repo, nil)

	_, _ = doRequest(t, srv, http.MethodGet, "/api/v1/businesses/search?q=x&technique=optimized", "")
	assert.Equal(t, "optimized", repo.lastPath)

	_, _ = doRequest(t, srv, http.MethodGet, "/api/v1/businesses/search?q=x", "")
	assert.Equal(t, "native", repo.lastPath)
}

func TestSearchAIMode(t *testing.T) {
	rec, body := doRequest(t, newTestServer(&stubRepo{}, nil), http.MethodGet,
		"/api/v1/businesses/search?q=x&mode=ai", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, body["message"], "AI search")
}

func TestSearchUnknownTechnique(t *testing.T) {
	rec, body := doRequest(t, newTestServer(&stubRepo{}, nil), http.MethodGet,
		"/api/v1/businesses/search?q=x&technique=fuzzy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestSearchParamClamping(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{name: "defaults", query: "", wantPage: 1, wantLimit: 20},
		{name: "page floor", query: "page=0", wantPage: 1, wantLimit: 20},
		{name: "negative page", query: "page=-3", wantPage: 1, wantLimit: 20},
		{name: "limit ceiling", query: "limit=500", wantPage: 1, wantLimit: 100},
		{name: "limit floor", query: "limit=0", wantPage: 1, wantLimit: 20},
		{name: "malformed", query: "page=abc&limit=xyz", wantPage: 1, wantLimit: 20},
		{name: "in range", query: "page=3&limit=50", wantPage: 3, wantLimit: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			srv := newTestServer(repo, nil)
			rec, _ := doRequest(t, srv, http.MethodGet, "/api/v1/businesses/search?"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantPage, repo.lastQuery.Page)
			assert.Equal(t, tt.wantLimit, repo.lastQuery.Limit)
		})
	}
}

func TestSearchEmptyResultIsArray(t *testing.T) {
	rec, _ := doRequest(t, newTestServer(&stubRepo{}, nil), http.MethodGet, "/api/v1/businesses/search", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestSearchInternalErrorIsMasked(t *testing.T) {
	repo := &stubRepo{searchErr: errors.New("pq: relation businesses does not exist")}
	rec, body := doRequest(t, newTestServer(repo, nil), http.MethodGet, "/api/v1/businesses/search?q=x", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["message"])
}

func TestIngestMissingFilePath(t *testing.T) {
	rec, body := doRequest(t, newTestServer(&stubRepo{}, nil), http.MethodPost, "/api/v1/ingest", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "filePath is required", body["message"])
}

func TestIngestFileNotFound(t *testing.T) {
	starter := stubStarter(ingest.Done{}, fmt.Errorf("failed to open extract: %w", fs.ErrNotExist))
	rec, body := doRequest(t, newTestServer(&stubRepo{}, starter), http.MethodPost,
		"/api/v1/ingest", `{"filePath":"/missing.xml"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "/missing.xml")
}

func TestIngestSurvivesClientDisconnect(t *testing.T) {
	var runCtx context.Context
	starter := func(ctx context.Context, _ string) (*ingest.Run, error) {
		runCtx = ctx
		ch := make(chan ingest.Event, 1)
		ch <- ingest.Done{TotalProcessed: 1}
		close(ch)
		return &ingest.Run{ID: "run-1", Events: ch}, nil
	}
	srv := newTestServer(&stubRepo{}, starter)

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest",
		strings.NewReader(`{"filePath":"/data/extract.xml"}`)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The connection going away must not cancel the run's context.
	require.NotNil(t, runCtx)
	cancel()
	assert.NoError(t, runCtx.Err())
}

func TestIngestSuccess(t *testing.T) {
	starter := stubStarter(ingest.Done{TotalProcessed: 800000, TotalInserted: 799990, TotalUpdated: 10, DurationMs: 1234}, nil)
	rec, body := doRequest(t, newTestServer(&stubRepo{}, starter), http.MethodPost,
		"/api/v1/ingest", `{"filePath":"/data/extract.xml"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]any)
	assert.Equal(t, "run-1", data["runId"])
	assert.EqualValues(t, 800000, data["totalProcessed"])
	assert.EqualValues(t, 799990, data["totalInserted"])
	assert.EqualValues(t, 10, data["totalUpdated"])
}
