package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/lpc864-ual/dlt-prototype/core"
)

// Server exposes a chain over HTTP: read-only block access, validation,
// entry submission, minting and a websocket feed of new blocks.
type Server struct {
	chain  *core.Chain
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(chain *core.Chain, logger *slog.Logger) *Server {
	s := &Server{
		chain:  chain,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /blocks", s.handleBlocks)
	s.mux.HandleFunc("GET /blocks/{hash}", s.handleBlock)
	s.mux.HandleFunc("GET /validate", s.handleValidate)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /entries", s.handlePending)
	s.mux.HandleFunc("POST /entries", s.handleEnqueue)
	s.mux.HandleFunc("POST /mint", s.handleMint)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Blocks())
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	b, ok, err := s.chain.BlockByHash(r.PathValue("hash"))
	if err != nil {
		s.logger.Error("Failed to look up block", "hash", r.PathValue("hash"), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "block not found"})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Index *int   `json:"index,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	resp := validateResponse{Valid: true}
	if err := s.chain.ValidateChain(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
		var chainErr *core.ChainError
		if errors.As(err, &chainErr) {
			resp.Index = &chainErr.Index
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Stats())
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.PendingEntries())
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var entry core.Entry
	if err := decodeBody(r, &entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	id, err := s.chain.EnqueueEntry(entry)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleMint mines a block from the request body, or from the pending queue
// when the body is empty. The search stops if the client goes away.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var payload core.Payload
	if err := decodeBody(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	b, err := s.chain.MintBlock(r.Context(), payload)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		s.logger.Error("Failed to mint block", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody keeps numbers as json.Number so integers are hashed exactly as
// the client sent them.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
