package api

import (
	"Muse/core"
	"Muse/lib/sl"
	"Muse/storage"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	ErrorText      = "I apologize, but I encountered an error."
	UnexpectedText = "I apologize, but I encountered an unexpected error."
	UnknownError   = "An unknown error occurred."

	UnknownIdentity = "unknown"
	requestIDHeader = "X-Request-Id"
)

type ChatService interface {
	core.ChatService
	Stats() (memory int, cache storage.CacheStats)
}

type MessageRequest struct {
	Conversation []core.ConversationTurn `json:"conversation"`
	Persona      string                  `json:"persona"`
}

// MessageResponse always carries Text; Error is set only when the request
// could not be handled normally.
type MessageResponse struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ClearResponse struct {
	Memory int `json:"memory"`
	Cache  int `json:"cache"`
}

type HealthResponse struct {
	Status string             `json:"status"`
	Memory int                `json:"memory"`
	Cache  storage.CacheStats `json:"cache"`
}

type Handler struct {
	chat         ChatService
	maxBodyBytes int64
	log          *slog.Logger
}

func NewHandler(chat ChatService, maxBodyBytes int64, log *slog.Logger) *Handler {
	return &Handler{
		chat:         chat,
		maxBodyBytes: maxBodyBytes,
		log:          log.With(sl.Module("api")),
	}
}

// Message answers one chat turn. Every outcome, including a malformed body
// or a panic, is reported with status 200 so the client can render it.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r.Context())
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("handling message", slog.Any("panic", rec))
			writeJSON(w, log, panicResponse(rec))
		}
	}()

	var body = r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	var req MessageRequest
	if err := decodeRequest(body, &req); err != nil {
		log.Warn("decoding request", sl.Err(err))
		writeJSON(w, log, MessageResponse{Text: ErrorText, Error: err.Error()})
		return
	}

	identity := IdentityKey(r)
	log.With(
		slog.String("identity", identity),
		slog.Int("turns", len(req.Conversation)),
	).Info("incoming message")

	reply := h.chat.HandleTurn(r.Context(), identity, req.Conversation, req.Persona)
	writeJSON(w, log, MessageResponse{Text: reply.Text, ImageBase64: reply.ImageBase64})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	memory, cache := h.chat.ClearMemory()
	writeJSON(w, h.logger(r.Context()), ClearResponse{Memory: memory, Cache: cache})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	memory, cache := h.chat.Stats()
	writeJSON(w, h.logger(r.Context()), HealthResponse{Status: "ok", Memory: memory, Cache: cache})
}

// decodeRequest reads exactly one JSON value; trailing data is an error
func decodeRequest(body io.Reader, req *MessageRequest) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, req)
}

func panicResponse(rec any) MessageResponse {
	if err, ok := rec.(error); ok {
		return MessageResponse{Text: ErrorText, Error: err.Error()}
	}
	return MessageResponse{Text: UnexpectedText, Error: UnknownError}
}

// IdentityKey scopes seed memory to a caller: the first X-Forwarded-For
// address, or "unknown" when the header is missing.
func IdentityKey(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return UnknownIdentity
	}
	first, _, _ := strings.Cut(forwarded, ",")
	if first = strings.TrimSpace(first); first == "" {
		return UnknownIdentity
	}
	return first
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("writing response", sl.Err(err))
	}
}

type ctxKey int

const loggerKey ctxKey = iota

// RequestID tags every request with an id and a logger carrying it
func (h *Handler) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		log := h.log.With(slog.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), loggerKey, log)))
	})
}

func (h *Handler) logger(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return log
	}
	return h.log
}
