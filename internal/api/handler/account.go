// Package handler implements the REST endpoint handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatmate/chatmate/internal/api/request"
	"github.com/chatmate/chatmate/internal/api/response"
	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/services/identity"
)

// AccountHandler handles account-related endpoints
type AccountHandler struct {
	identity *identity.Service
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(identitySvc *identity.Service) *AccountHandler {
	return &AccountHandler{
		identity: identitySvc,
	}
}

// Register handles POST /api/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}
	if h.identity.KeyMode() == model.KeyByEmail && req.Email == "" {
		WriteError(w, NewInvalidRequestError("email is required"))
		return
	}

	account, err := h.identity.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AccountFromModel(account))
}
