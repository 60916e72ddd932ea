package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	gh "github.com/google/go-github/v72/github"
	"github.com/gorilla/mux"
)

// maxBodySize caps webhook payloads; GitHub caps deliveries at 25 MB.
const maxBodySize = 25 << 20

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	Path   string
	Secret []byte
	Router *Router
	Logger *slog.Logger
}

type webhookHandler struct {
	secret []byte
	router *Router
	logger *slog.Logger
}

// NewHandler serves POST deliveries on cfg.Path plus the liveness and
// readiness probes. Every other path or method gets 404.
func NewHandler(cfg HandlerConfig) http.Handler {
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	wh := &webhookHandler{secret: cfg.Secret, router: cfg.Router, logger: cfg.Logger}

	r := mux.NewRouter()
	r.HandleFunc("/isalive", HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/isready", HealthCheckHandler).Methods(http.MethodGet)
	r.Handle(path, wh).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(wh.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(wh.notFound)
	return r
}

func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *webhookHandler) notFound(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Request rejected",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", http.StatusNotFound))
	w.WriteHeader(http.StatusNotFound)
}

func (h *webhookHandler) reject(w http.ResponseWriter, r *http.Request, reason string) {
	h.logger.Info("Request rejected",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", http.StatusBadRequest),
		slog.String("reason", reason))
	http.Error(w, reason, http.StatusBadRequest)
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventType := r.Header.Get(gh.EventTypeHeader)
	if eventType == "" {
		h.reject(w, r, "Missing x-github-event Header")
		return
	}
	signature := r.Header.Get(gh.SHA256SignatureHeader)
	if signature == "" {
		signature = r.Header.Get(gh.SHA1SignatureHeader)
	}
	if signature == "" {
		h.reject(w, r, "Missing x-hub-signature Header")
		return
	}

	// The whole body is buffered: the signature covers the raw bytes.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("Error reading request body", slog.Any("error", err))
		h.reject(w, r, "Error reading input")
		return
	}

	if !Verify(h.secret, body, signature) {
		h.logger.Error("Invalid HMAC signature", slog.String("remote_addr", r.RemoteAddr))
		h.reject(w, r, "Signature mismatch")
		return
	}

	event, err := ParseEvent(eventType, body)
	if err != nil {
		h.logger.Error("Error decoding JSON", slog.Any("error", err))
		h.reject(w, r, "Invalid JSON")
		return
	}
	event.DeliveryID = r.Header.Get(gh.DeliveryIDHeader)

	// Listeners outlive the response; only the request's values carry over.
	listeners := h.router.Dispatch(context.WithoutCancel(r.Context()), event)
	h.logger.Info("Received GitHub event",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", http.StatusOK),
		slog.String("event", string(event.Name)),
		slog.String("delivery", event.DeliveryID),
		slog.String("org", event.Org),
		slog.String("repo", event.Repo),
		slog.Int("listeners", listeners))

	w.WriteHeader(http.StatusOK)
}
