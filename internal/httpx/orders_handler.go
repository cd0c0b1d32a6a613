package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	C    *orders.Coordinator
	Idem redisx.Claimer
	Log  *zap.Logger
}

type CreateOrderReq struct {
	ExternalID string `json:"external_id" validate:"omitempty,max=128"`
	UserID     string `json:"user_id" validate:"required,max=64"`
	ProductID  string `json:"product_id" validate:"required,max=64"`
	PackageID  string `json:"package_id" validate:"required,max=64"`
}

type CreateOrderResp struct {
	Order      orders.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

type SelectReq struct {
	UserID    string `json:"user_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required,max=64"`
	PackageID string `json:"package_id" validate:"required,max=64"`
}

type ProofReq struct {
	UserID   string `json:"user_id" validate:"required"`
	ProofRef string `json:"proof_ref" validate:"max=512"`
}

type UserReq struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}/packages", h.listPackages)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/select", h.selectPackage)
	r.Post("/orders/{id}/proof", h.submitProof)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Get("/users/{userID}/orders", h.listUserOrders)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.C.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) listPackages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.C.ListPackages(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// createOrder opens an order and reserves a credential. With external_id
// the call is idempotent per user: a repeat returns the first order.
func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := uuid.NewString()
	if req.ExternalID != "" && h.Idem != nil {
		key := redisx.IdemOrderCreate(req.UserID, req.ExternalID)
		existing, claimed, err := h.Idem.Claim(ctx, key, orderID, redisx.TTLIdempotency)
		if err != nil {
			h.Log.Warn("idempotency claim failed", zap.Error(err))
		} else if !claimed {
			o, err := h.C.GetOrder(ctx, existing)
			if errors.Is(err, shop.ErrNotFound) {
				// request pertama masih jalan
				writeError(w, fmt.Errorf("order %s still being created: %w", existing, shop.ErrInvalidTransition))
				return
			}
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, CreateOrderResp{Order: o, Idempotent: true})
			return
		}
		if _, err := h.C.OpenOrder(ctx, orderID, req.UserID); err != nil {
			_ = h.Idem.Release(ctx, key)
			writeError(w, err)
			return
		}
	} else if _, err := h.C.OpenOrder(ctx, orderID, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.C.Select(ctx, orderID, req.UserID, shop.PackageKey{ProductID: req.ProductID, PackageID: req.PackageID})
	if err != nil {
		if errors.Is(err, shop.ErrOutOfStock) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "out_of_stock", "message": err.Error(), "order": o})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{Order: o})
}

func (h *OrdersHandler) selectPackage(w http.ResponseWriter, r *http.Request) {
	var req SelectReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.C.Select(r.Context(), chi.URLParam(r, "id"), req.UserID,
		shop.PackageKey{ProductID: req.ProductID, PackageID: req.PackageID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.C.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) submitProof(w http.ResponseWriter, r *http.Request) {
	var req ProofReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.C.SubmitProof(r.Context(), chi.URLParam(r, "id"), req.UserID, req.ProofRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req UserReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.C.Cancel(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.C.ListUserOrders(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
