package api

import (
	"encoding/json"
	"net/http"

	"github.com/vantagesearch/vantage/internal/apperr"
	"github.com/vantagesearch/vantage/internal/types"
)

// internalErrorMessage is the only text a non-operational failure ever
// shows a caller.
const internalErrorMessage = "Internal server error"

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type responseMeta struct {
	QueryTimeMs int64 `json:"queryTimeMs"`
	TotalTimeMs int64 `json:"totalTimeMs"`
}

// searchBody is the list-response envelope.
type searchBody struct {
	Status     string           `json:"status"`
	Data       []types.Business `json:"data"`
	Pagination pagination       `json:"pagination"`
	Meta       responseMeta     `json:"meta"`
}

// entityBody is the single-entity envelope.
type entityBody struct {
	Status string       `json:"status"`
	Data   any          `json:"data"`
	Meta   responseMeta `json:"meta"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError is the terminal error mapper. Operational errors surface
// their own message and status; everything else is logged in full and
// reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ae := apperr.From(err); ae != nil && ae.Operational() {
		writeJSON(w, ae.HTTPStatus(), errorBody{Status: "error", Message: ae.Message})
		return
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Message: internalErrorMessage})
}
