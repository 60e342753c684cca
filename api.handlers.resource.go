package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// ResourceRouter exposes the handlers of a collection mounted under Path.
type ResourceRouter interface {
	Path() string
	Create(w http.ResponseWriter, r *http.Request, ps httprouter.Params)
	GetAll(w http.ResponseWriter, r *http.Request, ps httprouter.Params)
	GetOne(w http.ResponseWriter, r *http.Request, ps httprouter.Params)
	Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params)
	Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params)
}

// ResourceHandler serves the CRUD endpoints of one collection.
type ResourceHandler[E any, P EntityPtr[E]] struct {
	api     *APIHandler
	name    string
	prefix  string
	service ResourceServiceProvider[E]
}

// NewResourceHandler builds the handlers of the resource name whose documents
// ids are generated with prefix.
func NewResourceHandler[E any, P EntityPtr[E]](api *APIHandler, name, prefix string, service ResourceServiceProvider[E]) *ResourceHandler[E, P] {
	return &ResourceHandler[E, P]{
		api:     api,
		name:    name,
		prefix:  prefix,
		service: service,
	}
}

func (h *ResourceHandler[E, P]) Path() string {
	return "/" + h.name
}

func (h *ResourceHandler[E, P]) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	logger := h.api.GetLoggerFromContext(ctx).With(zap.String("resource", h.name))
	var doc E
	if err := DecodeRequestBody(r, &doc); err != nil {
		h.api.sendError(w, r, logger, "failed to decode document", err)
		return
	}

	if err := P(&doc).Validate(true); err != nil {
		h.api.sendError(w, r, logger, "invalid document", err)
		return
	}

	id := h.api.idsHandler.Generate(h.prefix)
	P(&doc).SetID(id)
	if err := h.service.Add(ctx, id, &doc); err != nil {
		h.api.sendError(w, r, logger.With(zap.String("doc.id", id)), "failed to create document", err)
		return
	}

	logger.Info("success to create document", zap.String("doc.id", id))
	if err := WriteResponse(ctx, w, http.StatusCreated, &doc); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

func (h *ResourceHandler[E, P]) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	logger := h.api.GetLoggerFromContext(ctx).With(zap.String("resource", h.name))
	docs, err := h.service.GetAll(ctx)
	if err != nil {
		h.api.sendError(w, r, logger, "failed to get all documents", err)
		return
	}
	if docs == nil {
		docs = []E{}
	}

	logger.Info("success to get all documents", zap.Int("total", len(docs)))
	if err = WriteResponse(ctx, w, http.StatusOK, docs); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

func (h *ResourceHandler[E, P]) GetOne(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	id := ps.ByName("id")
	logger := h.api.GetLoggerFromContext(ctx).With(zap.String("resource", h.name), zap.String("doc.id", id))
	if !h.api.idsHandler.IsValid(id, h.prefix) {
		h.api.sendError(w, r, logger, "document id provided is not valid", ErrInvalidID)
		return
	}

	doc, err := h.service.GetOne(ctx, id)
	if err != nil {
		h.api.sendError(w, r, logger, "failed to get document", err)
		return
	}

	logger.Info("success to get document")
	if err = WriteResponse(ctx, w, http.StatusOK, doc); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

func (h *ResourceHandler[E, P]) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	id := ps.ByName("id")
	logger := h.api.GetLoggerFromContext(ctx).With(zap.String("resource", h.name), zap.String("doc.id", id))
	if !h.api.idsHandler.IsValid(id, h.prefix) {
		h.api.sendError(w, r, logger, "document id provided is not valid", ErrInvalidID)
		return
	}

	var patch E
	if err := DecodeRequestBody(r, &patch); err != nil {
		h.api.sendError(w, r, logger, "failed to decode document", err)
		return
	}

	if err := P(&patch).Validate(false); err != nil {
		h.api.sendError(w, r, logger, "invalid document", err)
		return
	}

	// the identifier is never changed.
	P(&patch).SetID("")
	doc, err := h.service.Update(ctx, id, &patch)
	if err != nil {
		h.sendMutationError(w, r, logger, "failed to update document", err)
		return
	}

	logger.Info("success to update document")
	if err = WriteResponse(ctx, w, http.StatusOK, doc); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

func (h *ResourceHandler[E, P]) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	id := ps.ByName("id")
	logger := h.api.GetLoggerFromContext(ctx).With(zap.String("resource", h.name), zap.String("doc.id", id))
	if !h.api.idsHandler.IsValid(id, h.prefix) {
		h.api.sendError(w, r, logger, "document id provided is not valid", ErrInvalidID)
		return
	}

	doc, err := h.service.Delete(ctx, id)
	if err != nil {
		h.sendMutationError(w, r, logger, "failed to delete document", err)
		return
	}

	logger.Info("success to delete document")
	if err = WriteResponse(ctx, w, http.StatusOK, doc); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// sendMutationError answers an update or delete failure. An absent document
// yields a null body with 200 when the api is configured so. Legacy errors
// imply that behavior.
func (h *ResourceHandler[E, P]) sendMutationError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, msg string, err error) {
	notFoundAsEmpty := h.api.config.API.NotFoundAsEmpty || h.api.config.API.LegacyErrors
	if errors.Is(err, ErrDocumentNotFound) && notFoundAsEmpty {
		logger.Info("document does not exist")
		if err = WriteResponse(r.Context(), w, http.StatusOK, nil); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}
	h.api.sendError(w, r, logger, msg, err)
}

// sendError logs err then answers with the status code and message matching its kind.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, msg string, err error) {
	status, message := api.errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn(msg, zap.Int("status", status), zap.Error(err))
	}
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err = WriteErrorResponse(r.Context(), w, NewAPIError(requestID, status, message)); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
}

// errorResponse maps err to the status code and message sent to the client.
// With legacy errors enabled every failure is reported with 400.
func (api *APIHandler) errorResponse(err error) (int, string) {
	var status int
	message := err.Error()
	switch {
	case IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, ErrDocumentNotFound):
		status = http.StatusNotFound
		message = ErrDocumentNotFound.Error()
	case errors.Is(err, ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
		message = ErrStorageUnavailable.Error()
	default:
		status = http.StatusBadRequest
	}
	if api.config.API.LegacyErrors {
		status = http.StatusBadRequest
	}
	return status, message
}
