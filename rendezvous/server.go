// Package rendezvous is the signalling service peers use to find each other:
// it registers peer ids, relays connection events over Server-Sent Events and
// hands out ICE servers.
package rendezvous

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"io"
	"net/http"
	"peertag/applog"
	"peertag/signaling"
	"peertag/transport"
	"peertag/util"
	"strings"
	"time"
)

const (
	maxEventBytes = 64 * 1024
	maxLogBytes   = 1024 * 1024

	keepAliveInterval = 15 * time.Second
)

type Config struct {
	IceServers []signaling.IceServersResponseServer
	ForceRelay bool
	// StaleAfter frees an id whose owner stopped listening for this long.
	StaleAfter time.Duration
}

type Server struct {
	cfg      Config
	registry *Registry
	logger   *applog.Logger
}

func NewServer(cfg Config, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.GetLogger()
	}
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.StaleAfter),
		logger:   logger,
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/peers", s.handleRegister)
	r.Delete("/peers/{id}", s.handleUnregister)
	r.Get("/peers/{id}/events", s.handleListen)
	r.Post("/peers/{id}/events", s.handleSendEvent)
	r.Get("/ice-servers", s.handleIceServers)
	r.Post("/logs", s.handleLogs)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())),
		)
	})
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, signaling.ErrorResponse{Error: err.Error()})
}

// statusFor maps registry errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, transport.ErrIDTaken):
		return http.StatusConflict
	case errors.Is(err, transport.ErrPeerUnavailable):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMailboxFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req signaling.RegisterRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if !util.IsValidToken(req.Id) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid peer id %q", req.Id))
		return
	}

	token, err := s.registry.Register(req.Id)
	if err != nil {
		s.logger.Info("Peer id rejected", zap.String("peerId", req.Id), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	s.logger.Info("Peer registered", zap.String("peerId", req.Id))
	writeJSON(w, http.StatusCreated, signaling.RegisterResponse{Id: req.Id, Token: token})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Unregister(id, bearerToken(r)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.logger.Info("Peer unregistered", zap.String("peerId", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendEvent(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := signaling.ParseEventMessage(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if event.GetRecipientId() != recipient {
		writeError(w, http.StatusBadRequest, errors.New("recipient does not match the path"))
		return
	}
	if err = s.registry.Authenticate(event.GetSenderId(), bearerToken(r)); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	if err = s.registry.Deliver(recipient, body); err != nil {
		s.logger.Debug("Event not delivered",
			zap.String("senderId", event.GetSenderId()),
			zap.String("recipientId", recipient),
			zap.Error(err),
		)
		writeError(w, statusFor(err), err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleListen streams queued events as Server-Sent Events until the client
// goes away or the id is released.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	events, release, err := s.registry.Subscribe(id, bearerToken(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("Peer listening", zap.String("peerId", id))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("Peer stopped listening", zap.String("peerId", id))
			return
		case <-keepAlive.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			flusher.Flush()
		case data, open := <-events:
			if !open {
				return
			}
			if _, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", uuid.NewString(), data); err != nil {
				s.logger.Warn("Failed to write event", zap.String("peerId", id), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleIceServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, signaling.IceServersResponse{
		ForceRelay: s.cfg.ForceRelay,
		Servers:    s.cfg.IceServers,
	})
}

// handleLogs accepts a batch of log entries shared by a client, gzip
// compressed or plain.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLogBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if r.Header.Get("Content-Encoding") == "gzip" {
		if body, err = util.GzipDecompressData(body, maxLogBytes); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid gzip body: %w", err))
			return
		}
	}

	var entries []signaling.LogsMessageRequest
	if err = json.Unmarshal(body, &entries); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	for _, entry := range entries {
		s.logger.Info("Client log",
			zap.Time("clientTime", entry.Timestamp),
			zap.String("clientMessage", entry.Message),
			zap.Any("metaData", entry.MetaData),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}
