package handlers

import (
	"net/http"
	"strconv"
	"time"

	"vocacore/internal/tokenauth"
)

// ListUsageLogs serves the audit ledger with query-string filters:
// token_type, token_id, endpoint, from, to (RFC 3339), status_class
// (2/4/5), min_response_time_ms, limit.
func ListUsageLogs(store *tokenauth.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := tokenauth.LogFilter{
			TokenType: q.Get("token_type"),
			TokenID:   q.Get("token_id"),
			Endpoint:  q.Get("endpoint"),
		}
		var err error
		if f.From, err = parseTimeParam(q.Get("from")); err != nil {
			respondError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		if f.To, err = parseTimeParam(q.Get("to")); err != nil {
			respondError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
		if v := q.Get("status_class"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 5 {
				respondError(w, http.StatusBadRequest, "status_class must be 1-5")
				return
			}
			f.StatusClass = n
		}
		if v := q.Get("min_response_time_ms"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				respondError(w, http.StatusBadRequest, "min_response_time_ms must be a non-negative integer")
				return
			}
			f.MinResponseTimeMs = n
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				f.Limit = n
			}
		}

		logs, err := store.QueryLogs(r.Context(), f)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, map[string]any{"count": len(logs), "logs": logs})
	}
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
