package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Server handles incoming HTTP requests for inspecting the link and
// sending payload to the peer
type Server struct {
	Logger *slog.Logger
	Bridge *Bridge
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /payload", s.handlePayload)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Bridge.Snapshot()); err != nil {
		s.Logger.Error("Failed to encode status", "error", err)
	}
}

// handlePayload queues hex encoded bytes for the peer
func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	type PayloadRequest struct {
		Data string `json:"data"`
	}

	var req PayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Data == "" {
		s.sendError(w, "'data' field is required", http.StatusBadRequest)
		return
	}

	data, err := hex.DecodeString(req.Data)
	if err != nil {
		s.sendError(w, "'data' must be hex encoded: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Bridge.Send(data); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrLinkDown):
			status = http.StatusConflict
		case errors.Is(err, ErrQueueFull):
			status = http.StatusServiceUnavailable
		}
		s.Logger.Warn("Failed to queue payload", "error", err, "length", len(data))
		s.sendError(w, err.Error(), status)
		return
	}

	s.Logger.Info("Payload queued", "length", len(data))
	w.WriteHeader(http.StatusAccepted)
}
