package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	repository "github.com/okian/contacts/internal/adapters/repository"
	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/logger"
)

// ContactsHandler serves the /contacts resource.
type ContactsHandler struct {
	deps Dependencies
}

// NewContactsHandler creates a new contacts handler.
func NewContactsHandler(deps Dependencies) *ContactsHandler {
	return &ContactsHandler{deps: deps}
}

// HandleList handles GET /contacts.
func (h *ContactsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.GetAll(r.Context()))
}

// HandleGet handles GET /contacts/{id}. A missing contact is a 404 with an
// empty body.
func (h *ContactsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.deps.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleCreate handles POST /contacts. Any contactId in the body is ignored.
func (h *ContactsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_contact"
	c, ok := decodeBody(w, r, op)
	if !ok {
		return
	}
	stored := h.deps.Add(r.Context(), c)
	w.Header().Set("Location", fmt.Sprintf("/contacts/%d", stored.ContactID))
	writeJSON(w, http.StatusCreated, stored)
}

// HandleUpdate handles PUT /contacts/{id}. The id comes from the path, and an
// unknown id is accepted without effect.
func (h *ContactsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_contact"
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, ok := decodeBody(w, r, op)
	if !ok {
		return
	}
	if err := h.deps.Update(r.Context(), c.WithID(id)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /contacts/{id}. Deleting an unknown id still
// succeeds.
func (h *ContactsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Delete(r.Context(), id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} route variable, answering 400 when it is not an
// integer.
func pathID(w http.ResponseWriter, r *http.Request) (model.ContactID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", fmt.Errorf("%w: %q", ErrInvalidID, raw))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, op string) (model.Contact, bool) {
	c, err := model.DecodeContact(http.MaxBytesReader(w, r.Body, model.MaxBodyBytes+1))
	if err != nil {
		logger.FromContext(r.Context()).Debug(r.Context(), "rejected contact body",
			logger.String("op", op),
			logger.Error(err),
		)
		status, code := http.StatusBadRequest, "bad_request"
		if errors.Is(err, model.ErrBodyTooLarge) {
			status, code = http.StatusRequestEntityTooLarge, "body_too_large"
		}
		writeError(w, status, code, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return model.Contact{}, false
	}
	return c, true
}
