package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// maxBodyBytes caps an append request body.
const maxBodyBytes = 4 << 10

// RESTHandler serves the collection API.
type RESTHandler struct {
	store  Store
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(s Store, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		store:  s,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/collections/{collection}/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/collections/{collection}/items", h.AppendItem).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/collections/{collection}/items/{id}", h.DeleteItem).Methods(http.MethodDelete)

	// Preflights must match a route for the router middleware, which answers
	// them, to run.
	router.Methods(http.MethodOptions).PathPrefix("/api/v1/collections/").HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(HealthResponse{Status: "healthy", Version: Version}))
}

// ListItems handles GET /api/v1/collections/{collection}/items requests.
// Items are returned in insertion order.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["collection"]

	items, err := h.store.List(r.Context(), name)
	if err != nil {
		h.handleStoreError(w, err, "list items")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(items))
}

// AppendItem handles POST /api/v1/collections/{collection}/items requests.
func (h *RESTHandler) AppendItem(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["collection"]
	if !model.ValidCollection(name) {
		writeError(w, h.logger, http.StatusNotFound, "collection not found")
		return
	}

	var input model.AppendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	value, err := model.NormalizeName(input.Name)
	if err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.store.Append(r.Context(), name, value)
	if err != nil {
		h.handleStoreError(w, err, "append item")
		return
	}

	h.logger.Debug("item appended",
		zap.String("collection", name),
		zap.String("id", key),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
	)

	writeJSON(w, h.logger, http.StatusCreated, model.NewSuccessResponse(model.GroceryItem{ID: key, Name: value}))
}

// DeleteItem handles DELETE /api/v1/collections/{collection}/items/{id}
// requests. Deleting a missing key succeeds.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.store.Delete(r.Context(), vars["collection"], vars["id"]); err != nil {
		h.handleStoreError(w, err, "delete item")
		return
	}

	writeJSON(w, h.logger, http.StatusNoContent, nil)
}

// storeErrors maps store failures to the status and message clients see.
var storeErrors = []struct {
	err     error
	status  int
	message string
}{
	{store.ErrInvalidCollection, http.StatusNotFound, "collection not found"},
	{store.ErrInvalidKey, http.StatusBadRequest, "invalid item ID"},
	{store.ErrEmptyValue, http.StatusBadRequest, "name cannot be empty"},
	{store.ErrClosed, http.StatusServiceUnavailable, "store is shutting down"},
}

// storeErrorStatus returns the HTTP status and message for err. Unknown
// errors are 500.
func storeErrorStatus(err error) (int, string) {
	for _, e := range storeErrors {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	status, message := storeErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
	}
	writeError(w, h.logger, status, message)
}

// writeJSON writes data with status. A nil data writes no body.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, model.ErrorResponse{Code: status, Message: message})
}
