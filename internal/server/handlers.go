package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/lineagekit/internal/connection"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/leapstack-labs/lineagekit/pkg/lineage"
)

const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// extractResponse is the metadata of one task, with the record id when stored.
type extractResponse struct {
	*core.Metadata
	RecordID string `json:"record_id,omitempty"`
}

type batchItem struct {
	Metadata *core.Metadata `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type parseRequest struct {
	SQL     string `json:"sql"`
	Dialect string `json:"dialect,omitempty"`
}

type parseResponse struct {
	Dialect core.Dialect `json:"dialect"`
	*lineage.Fact
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var task core.Task
	if !s.decode(w, r, &task) {
		return
	}

	md, err := s.extractors.Extract(&task)
	recordExtraction(md, err)
	if err != nil {
		s.writeExtractError(w, err)
		return
	}

	resp := extractResponse{Metadata: md}
	if s.records != nil {
		rec, err := s.records.SaveRecord(r.Context(), md)
		if err != nil {
			s.logger.Error("failed to store lineage record", "task", md.Name, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to store lineage record")
			return
		}
		resp.RecordID = rec.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExtractBatch(w http.ResponseWriter, r *http.Request) {
	var tasks []*core.Task
	if !s.decode(w, r, &tasks) {
		return
	}
	for i, t := range tasks {
		if t == nil {
			writeError(w, http.StatusBadRequest, "task "+strconv.Itoa(i)+" is null")
			return
		}
	}

	results, err := s.extractors.ExtractAll(r.Context(), tasks, extractor.BatchOptions{Concurrency: s.concurrency})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	items := make([]batchItem, len(results))
	for i, res := range results {
		recordExtraction(res.Metadata, res.Err)
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			continue
		}
		items[i].Metadata = res.Metadata
		if s.records != nil {
			if _, err := s.records.SaveRecord(r.Context(), res.Metadata); err != nil {
				s.logger.Error("failed to store lineage record", "task", res.Metadata.Name, "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}

	tag := core.DialectNone
	if req.Dialect != "" {
		d, err := dialect.Lookup(req.Dialect)
		var unknown *dialect.UnknownDialectError
		switch {
		case errors.As(err, &unknown):
			writeError(w, http.StatusBadRequest, unknown.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		tag = d.Tag
	}

	fact := extractor.ParserFor(tag)(req.SQL)
	writeJSON(w, http.StatusOK, parseResponse{Dialect: tag, Fact: fact})
}

func (s *Server) handleDialects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dialect.List())
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		writeError(w, http.StatusNotFound, "no connection source configured")
		return
	}

	id := chi.URLParam(r, "id")
	conn, err := s.connections.GetConnection(r.Context(), id)
	switch {
	case errors.Is(err, connection.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Error("connection lookup failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "connection lookup failed")
	default:
		writeJSON(w, http.StatusOK, conn)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusNotFound, "no record store configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	name := chi.URLParam(r, "name")
	records, err := s.records.History(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("history lookup failed", "task", name, "error", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeExtractError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrMalformedTask) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("extraction failed", "error", err)
	writeError(w, http.StatusInternalServerError, "extraction failed")
}

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
