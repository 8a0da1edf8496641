package user

import (
	"errors"
	"net/http"

	"github.com/AzeemWaqarr/wattwise/internal/dto"
	"github.com/AzeemWaqarr/wattwise/internal/httpx"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	auth    *Authenticator
	log     *zap.SugaredLogger
}

func NewHandler(service *Service, auth *Authenticator, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{service: service, auth: auth, log: logger}
}

func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", h.handleRegister)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/logout", h.handleLogout)
	mux.HandleFunc("GET /api/users", h.handleList)
	mux.HandleFunc("GET /api/user-stats", h.handleStats)
	mux.Handle("PUT /api/users/{id}", h.auth.RequireAdmin(http.HandlerFunc(h.handleUpdate)))
	mux.Handle("DELETE /api/users/{id}", h.auth.RequireAdmin(http.HandlerFunc(h.handleDelete)))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	if r.Header.Get("Authorization") != "" {
		token, err := httpx.BearerToken(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := h.service.Authenticate(ctx, token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx = WithClaims(ctx, claims)
	}
	if _, err := h.service.Register(ctx, req.Email, req.Password, Role(req.Role)); err != nil {
		h.writeError(w, "register", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: "User created successfully!"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.service.Login(r.Context(), req.Email, req.Password, Role(req.Role))
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.LoginResponse{
		Message:     "Login successful",
		User:        toResponse(res.User),
		AccessToken: res.Token,
		ExpiresIn:   int64(res.ExpiresIn.Seconds()),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := httpx.BearerToken(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.writeError(w, "logout", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, "list users", err)
		return
	}
	out := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toResponse(u))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Update(r.Context(), r.PathValue("id"), req.Email, Role(req.Role)); err != nil {
		h.writeError(w, "update user", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: "User updated successfully!"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, "delete user", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: "User deleted successfully"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, "user stats", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.UserStatsResponse{
		TotalUsers:   st.TotalUsers,
		AdminCount:   st.AdminCount,
		EndUserCount: st.EndUserCount,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrIncorrectPassword),
		errors.Is(err, ErrRoleMismatch):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUserNotFound):
		status := http.StatusNotFound
		if op == "login" {
			status = http.StatusBadRequest
		}
		httpx.WriteError(w, status, err.Error())
	case errors.Is(err, ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	default:
		h.log.Errorw(op+" failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Server error")
	}
}

func toResponse(u User) dto.UserResponse {
	return dto.UserResponse{
		ID:        u.ID.Hex(),
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Unix(),
	}
}
