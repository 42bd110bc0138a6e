package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fxmarket/forex-marketplace/internal/api/middleware"
	"github.com/fxmarket/forex-marketplace/internal/directory"
	"go.uber.org/zap"
)

type UserHandler struct {
	dir *directory.PostgresDirectory
}

func NewUserHandler(dir *directory.PostgresDirectory) *UserHandler {
	return &UserHandler{dir: dir}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-email", "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		RespondError(w, r, http.StatusBadRequest, "request/weak-password", "password must be at least 8 characters")
		return
	}

	user, err := h.dir.Register(r.Context(), req.Email, req.FirstName, req.LastName, req.Password)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("register user failed", zap.Error(err), zap.String("email", req.Email))
		RespondError(w, r, http.StatusInternalServerError, "user/create-failed", "Failed to create user")
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	user, err := h.dir.Authenticate(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("login failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/login-failed", "Failed to log in")
		return
	}

	token, err := middleware.IssueToken(user.ID.String())
	if err != nil {
		zap.L().Error("token signing failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/token-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	user, err := h.dir.GetUser(r.Context(), actorID)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get user failed", zap.Error(err), zap.String("user_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "user/read-failed", "Failed to get user")
		return
	}

	RespondJSON(w, http.StatusOK, user)
}
