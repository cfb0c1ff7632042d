package api

import (
	"context"
	_ "embed"
	json "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tony-ross/actor-messaging/logger"
	"github.com/tony-ross/actor-messaging/models"
	"github.com/tony-ross/actor-messaging/publisher"
	"go.uber.org/zap"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	applicationStatus = "Messaging application is running"
	databaseStatus    = "Database connection is healthy"
	databaseErrorText = "Database error: "
)

//go:embed static/index.html
var homepage []byte

type MessageSender interface {
	Send(ctx context.Context, message models.OutboundMessage) error
	Topic() string
}

type ActorFinder interface {
	FindByFirstName(ctx context.Context, firstName string) ([]models.Actor, error)
	FindByLastName(ctx context.Context, lastName string) ([]models.Actor, error)
	FindByFullName(ctx context.Context, firstName string, lastName string) ([]models.Actor, error)
	FindTop10(ctx context.Context) ([]models.Actor, error)
	Count(ctx context.Context) (int64, error)
}

type Handler struct {
	sender MessageSender
	actors ActorFinder
	now    func() time.Time
}

func New(sender MessageSender, actors ActorFinder) *Handler {
	return &Handler{sender: sender, actors: actors, now: time.Now}
}

// Routes registers every endpoint under rootPath, e.g. "/api/messaging".
func (h *Handler) Routes(rootPath string) http.Handler {
	root := strings.TrimSuffix(rootPath, "/")

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+root+"/health", h.Health)
	mux.HandleFunc("POST "+root+"/send", h.SendMessage)
	mux.HandleFunc("GET "+root+"/actors", h.ListActors)
	mux.HandleFunc("GET "+root+"/actors/search", h.SearchActors)
	mux.HandleFunc("GET "+root+"/db/health", h.DatabaseHealth)
	mux.HandleFunc("GET "+root+"/{$}", h.Homepage)
	if root != "" {
		// The homepage fetches relative paths so must be served with its trailing slash
		mux.Handle("GET "+root, http.RedirectHandler(root+"/", http.StatusMovedPermanently))
	}
	return mux
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:    applicationStatus,
		Timestamp: models.EpochMillis(h.now()),
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctxLogger := requestLogger(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ctxLogger.Errorw("Error reading message body", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorEnvelope(err.Error()))
		return
	}

	ctx := detach(r)
	message := publisher.NewMessage(ctx, string(body))
	if err := h.sender.Send(ctx, message); err != nil {
		ctxLogger.Errorw("Failed to send message", "error", err, "messageKey", message.Key)
		writeJSON(w, http.StatusInternalServerError, models.ErrorEnvelope(errors.Cause(err).Error()))
		return
	}

	ctxLogger.Debugw("Sent message", "messageKey", message.Key, "topic", h.sender.Topic())
	writeJSON(w, http.StatusOK, models.SuccessEnvelope("Message sent to topic "+h.sender.Topic(), message.Body))
}

func (h *Handler) ListActors(w http.ResponseWriter, r *http.Request) {
	actors, err := h.actors.FindTop10(detach(r))
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actors)
}

// SearchActors dispatches on which of firstName and lastName are present in the query string.
// A parameter given with an empty value is present and matches the empty string.
func (h *Handler) SearchActors(w http.ResponseWriter, r *http.Request) {
	ctx := detach(r)
	query := r.URL.Query()
	firstName, hasFirstName := queryValue(query, "firstName")
	lastName, hasLastName := queryValue(query, "lastName")

	var actors []models.Actor
	var err error
	switch {
	case hasFirstName && hasLastName:
		actors, err = h.actors.FindByFullName(ctx, firstName, lastName)
	case hasFirstName:
		actors, err = h.actors.FindByFirstName(ctx, firstName)
	case hasLastName:
		actors, err = h.actors.FindByLastName(ctx, lastName)
	default:
		actors, err = h.actors.FindTop10(ctx)
	}
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actors)
}

func (h *Handler) DatabaseHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.actors.Count(detach(r))
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:     databaseStatus,
		ActorCount: &count,
		Timestamp:  models.EpochMillis(h.now()),
	})
}

func (h *Handler) Homepage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(homepage)
}

// detach keeps the request's trace and request id but not its cancellation,
// so a client disconnect does not abort a publish or query already under way.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func queryValue(query map[string][]string, key string) (string, bool) {
	values, ok := query[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func requestLogger(r *http.Request) *zap.SugaredLogger {
	return logger.Logger.With("requestId", RequestIDFromContext(r.Context()))
}

func writeDatabaseError(w http.ResponseWriter, r *http.Request, err error) {
	requestLogger(r).Errorw("Database error", "error", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, models.ErrorEnvelope(databaseErrorText+errors.Cause(err).Error()))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Errorw("Error writing response body", "error", err)
	}
}
