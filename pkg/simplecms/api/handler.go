package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

// ContentHandler serves content types and items over HTTP.
type ContentHandler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewContentHandler creates a new content handler. A nil logger uses
// slog.Default.
func NewContentHandler(service simplecms.Service, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{service: service, logger: logger}
}

// Routes returns the content type and item routes. Mount it under /api/v1.
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/content-types", h.ListContentTypes)
	r.Get("/content-types/{slug}", h.GetContentType)

	r.Route("/content/{typeSlug}", func(r chi.Router) {
		r.Get("/", h.ListItems)
		r.Post("/", h.CreateItem)
		r.Get("/by-relation", h.GetByRelation)
		r.Get("/{id}", h.GetItem)
		r.Put("/{id}", h.UpdateItem)
		r.Delete("/{id}", h.DeleteItem)
		r.Get("/{id}/populated", h.GetPopulated)
	})

	return r
}

// CreateItemRequest is the request body for creating an item
type CreateItemRequest struct {
	Slug string         `json:"slug"`
	Data map[string]any `json:"data"`
}

// UpdateItemRequest is the request body for updating an item
type UpdateItemRequest struct {
	Slug *string        `json:"slug,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// ListContentTypes returns every stored content type.
func (h *ContentHandler) ListContentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListContentTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"content_types": types})
}

// GetContentType returns one content type by slug.
func (h *ContentHandler) GetContentType(w http.ResponseWriter, r *http.Request) {
	ct, err := h.service.GetContentType(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, ct)
}

// ListItems lists the items of one content type.
func (h *ContentHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := h.pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := h.service.ListItems(r.Context(), chi.URLParam(r, "typeSlug"), simplecms.ListItemsRequest{
		Slug:               q.Get("slug"),
		Limit:              limit,
		Offset:             offset,
		IncludeContentType: q.Get("include_type") == "true",
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// GetItem returns one item.
func (h *ContentHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "typeSlug"), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// GetPopulated returns one item with its relation targets attached.
func (h *ContentHandler) GetPopulated(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetPopulated(r.Context(), chi.URLParam(r, "typeSlug"), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// CreateItem creates an item.
func (h *ContentHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeBadRequest(w, r, "invalid request body", err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), chi.URLParam(r, "typeSlug"), simplecms.CreateItemRequest{
		Slug: req.Slug,
		Data: req.Data,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Content item created", "type", chi.URLParam(r, "typeSlug"), "id", item.ID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, item)
}

// UpdateItem updates an item's slug, data or both.
func (h *ContentHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeBadRequest(w, r, "invalid request body", err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "typeSlug"), id, simplecms.UpdateItemRequest{
		Slug: req.Slug,
		Data: req.Data,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// DeleteItem deletes an item and its edges.
func (h *ContentHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), chi.URLParam(r, "typeSlug"), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetByRelation lists items referencing target_id through field.
func (h *ContentHandler) GetByRelation(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := h.pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	targetID, err := uuid.Parse(q.Get("target_id"))
	if err != nil {
		h.writeBadRequest(w, r, "invalid target_id", err)
		return
	}
	res, err := h.service.GetByRelation(r.Context(), chi.URLParam(r, "typeSlug"), simplecms.RelationLookupRequest{
		Field:    q.Get("field"),
		TargetID: targetID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// itemID parses the {id} path parameter. A malformed id cannot name a stored
// item, so it is reported as not found.
func (h *ContentHandler) itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, &simplecms.Error{Kind: simplecms.KindNotFound, Message: "content item not found"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ContentHandler) pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	var err error
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			h.writeBadRequest(w, r, "invalid limit", err)
			return 0, 0, false
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			h.writeBadRequest(w, r, "invalid offset", err)
			return 0, 0, false
		}
	}
	return limit, offset, true
}

// decodeBody reads a JSON body with numbers kept as json.Number.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   simplecms.ErrorKind `json:"error"`
	Message string              `json:"message"`
	Details []schema.Violation  `json:"details,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind simplecms.ErrorKind) int {
	switch kind {
	case simplecms.KindNotFound:
		return http.StatusNotFound
	case simplecms.KindValidationFailed, simplecms.KindInvalidSlug:
		return http.StatusBadRequest
	case simplecms.KindConflict:
		return http.StatusConflict
	case simplecms.KindDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *ContentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: simplecms.KindInternal, Message: "internal error"}
	var e *simplecms.Error
	if errors.As(err, &e) {
		resp.Error = e.Kind
		resp.Details = e.Violations
		if e.Kind != simplecms.KindInternal {
			resp.Message = e.Message
		}
	}

	status := StatusFor(resp.Error)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "kind", resp.Error, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func (h *ContentHandler) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Debug("Bad request", "method", r.Method, "path", r.URL.Path, "error", err)
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: simplecms.KindValidationFailed, Message: msg})
}
