package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/internal/middleware"
	"github.com/jayjaytrn/order-management-system/internal/orders"
	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

type Handler struct {
	Auth   *auth.Authenticator
	Tokens *auth.TokenService
	Orders *orders.Service
	Logger *zap.SugaredLogger
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Infow("error decoding registration", "error", err)
		writeBadRequest(w, "invalid request body")
		return
	}

	user, err := h.Auth.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.UserResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.Logger.Infow("error decoding credentials", "error", err)
		writeBadRequest(w, "invalid request body")
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	pair, err := h.Auth.Login(r.Context(), creds)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := h.Tokens.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		h.Logger.Infow("refresh rejected", "error", err)
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the session the refresh token belongs to.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := h.Tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.Logger.Infow("logout rejected", "error", err)
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerFromContext(r.Context())

	var req models.OrderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Infow("error decoding order", "error", err)
		writeBadRequest(w, "invalid request body")
		return
	}

	amount, err := orders.ParseAmount(req.Amount.String())
	if err != nil {
		h.writeError(w, err)
		return
	}

	created, err := h.Orders.Create(r.Context(), owner, req.ProductName, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := models.NewOrderResponse(created.Order)
	resp.Dispatched = &created.Dispatched
	status := http.StatusCreated
	if !created.Dispatched {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerFromContext(r.Context())

	list, err := h.Orders.List(r.Context(), owner, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]models.OrderResponse, 0, len(list))
	for _, o := range list {
		resp = append(resp, models.NewOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerFromContext(r.Context())

	order, err := h.Orders.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewOrderResponse(order))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerFromContext(r.Context())

	order, err := h.Orders.Cancel(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Logger.Infow("order cancelled by owner", "order_id", order.ID, "user_id", owner)
	writeJSON(w, http.StatusOK, models.NewOrderResponse(order))
}
