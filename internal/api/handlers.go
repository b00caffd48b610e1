package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vantagesearch/vantage/internal/apperr"
	"github.com/vantagesearch/vantage/internal/ingest"
	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

// Paging bounds applied at the controller.
const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	searcher, err := s.selector.Select(params.Get("mode"), params.Get("technique"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	query := types.SearchQuery{
		Term: params.Get("q"),
		Filters: types.SearchFilters{
			ABNStatus:      params.Get("abnStatus"),
			EntityTypeCode: params.Get("entityType"),
			State:          params.Get("state"),
			Postcode:       params.Get("postcode"),
		},
		Page:  clampedInt(params.Get("page"), defaultPage, 1, 0),
		Limit: clampedInt(params.Get("limit"), defaultLimit, 1, maxLimit),
	}

	result, err := searcher(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := result.Businesses
	if data == nil {
		data = []types.Business{}
	}
	writeJSON(w, http.StatusOK, searchBody{
		Status: "success",
		Data:   data,
		Pagination: pagination{
			Page:       query.Page,
			Limit:      query.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages(query.Limit),
		},
		Meta: responseMeta{
			QueryTimeMs: result.QueryTimeMs,
			TotalTimeMs: requestElapsedMs(r),
		},
	})
}

func (s *Server) handleFindByABN(w http.ResponseWriter, r *http.Request) {
	abn := chi.URLParam(r, "abn")

	business, queryTimeMs, err := s.repo.FindByABN(r.Context(), abn)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, r, apperr.NotFound("Business not found: %s", abn))
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entityBody{
		Status: "success",
		Data:   business,
		Meta: responseMeta{
			QueryTimeMs: queryTimeMs,
			TotalTimeMs: requestElapsedMs(r),
		},
	})
}

// ingestRequest is the POST /ingest body.
type ingestRequest struct {
	FilePath string `json:"filePath"`
}

// ingestResult is returned once the run completes.
type ingestResult struct {
	RunID string `json:"runId"`
	ingest.Done
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation("invalid request body").Wrap(err))
		return
	}
	if req.FilePath == "" {
		s.writeError(w, r, apperr.Validation("filePath is required"))
		return
	}

	// The run must survive the HTTP connection: a client disconnect
	// cancels r.Context(), but ingestion is operator-triggered work
	// that is not cancellable mid-flight. Only the response wait below
	// stays tied to the request.
	run, err := s.startIngest(context.WithoutCancel(r.Context()), req.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeError(w, r, apperr.Validation("file not found: %s", req.FilePath).Wrap(err))
			return
		}
		s.writeError(w, r, err)
		return
	}

	// Ingestion is synchronous from the caller's point of view: the
	// response carries the final tallies. The run itself executes on
	// its own goroutine with its own pool, so other requests on this
	// worker are unaffected while we wait.
	done, err := run.Wait()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entityBody{
		Status: "success",
		Data:   ingestResult{RunID: run.ID, Done: done},
		Meta:   responseMeta{TotalTimeMs: requestElapsedMs(r)},
	})
}

// clampedInt parses raw as an integer, substituting def when absent or
// malformed and clamping to [lo, hi]. hi of zero means unbounded.
func clampedInt(raw string, def, lo, hi int) int {
	n := def
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			n = parsed
		}
	}
	if n < lo {
		n = lo
	}
	if hi > 0 && n > hi {
		n = hi
	}
	return n
}
