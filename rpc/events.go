package rpc

import (
	"net/http"
	"strings"

	"fundchain/integrations/audit"
)

// handleQueryEvents pages through the audit index. Query parameters: type,
// projectId, after (exclusive sequence) and limit.
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "unavailable", "audit index not configured")
		return
	}
	filter := audit.Filter{Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if r.URL.Query().Has("projectId") {
		id, err := queryUint(r, "projectId", 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.ProjectID = &id
	}
	after, err := queryUint(r, "after", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter.AfterSequence = after
	limit, err := queryUint(r, "limit", audit.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > audit.MaxLimit {
		limit = audit.MaxLimit
	}
	filter.Limit = int(limit)

	records, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	var next uint64
	if n := len(records); n > 0 {
		next = records[n-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records, "next": next})
}
