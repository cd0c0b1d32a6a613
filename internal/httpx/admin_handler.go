package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	"github.com/go-chi/chi/v5"
)

// HeaderAdminID carries the caller identity for admin routes. The
// coordinator decides whether it belongs to an admin.
const HeaderAdminID = "X-Admin-Id"

type AdminHandler struct {
	C *orders.Coordinator
}

type ProductReq struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type PackageReq struct {
	ID    string `json:"id" validate:"required,max=64"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type PriceReq struct {
	Price int64 `json:"price"`
}

type RestockReq struct {
	Secrets []string `json:"secrets" validate:"required,min=1"`
}

type RejectReq struct {
	Note string `json:"note" validate:"max=512"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/products", h.addProduct)
		r.Put("/products/{productID}", h.updateProduct)
		r.Get("/products/{productID}/stock", h.stock)
		r.Post("/products/{productID}/packages", h.addPackage)
		r.Put("/products/{productID}/packages/{packageID}/price", h.setPrice)
		r.Delete("/products/{productID}/packages/{packageID}", h.deletePackage)
		r.Post("/products/{productID}/packages/{packageID}/credentials", h.restock)
		r.Get("/orders/pending", h.pending)
		r.Post("/orders/{id}/approve", h.approve)
		r.Post("/orders/{id}/reject", h.reject)
	})
}

func adminID(r *http.Request) string { return r.Header.Get(HeaderAdminID) }

func packageKey(r *http.Request) shop.PackageKey {
	return shop.PackageKey{ProductID: chi.URLParam(r, "productID"), PackageID: chi.URLParam(r, "packageID")}
}

func (h *AdminHandler) addProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := inventory.Product{ID: req.ID, Name: req.Name, Category: req.Category, Description: req.Description}
	if err := h.C.AddProduct(r.Context(), adminID(r), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := inventory.Product{ID: chi.URLParam(r, "productID"), Name: req.Name, Category: req.Category, Description: req.Description}
	if err := h.C.UpdateProduct(r.Context(), adminID(r), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) addPackage(w http.ResponseWriter, r *http.Request) {
	var req PackageReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := inventory.Package{
		Key:   shop.PackageKey{ProductID: chi.URLParam(r, "productID"), PackageID: req.ID},
		Name:  req.Name,
		Price: req.Price,
	}
	if err := h.C.AddPackage(r.Context(), adminID(r), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) setPrice(w http.ResponseWriter, r *http.Request) {
	var req PriceReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key := packageKey(r)
	if err := h.C.SetPrice(r.Context(), adminID(r), key, req.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"package": key, "price": req.Price})
}

func (h *AdminHandler) deletePackage(w http.ResponseWriter, r *http.Request) {
	if err := h.C.DeletePackage(r.Context(), adminID(r), packageKey(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := h.C.Restock(r.Context(), adminID(r), packageKey(r), req.Secrets)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"added": n})
}

func (h *AdminHandler) stock(w http.ResponseWriter, r *http.Request) {
	rep, err := h.C.StockReport(r.Context(), adminID(r), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *AdminHandler) pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.C.PendingOrders(r.Context(), adminID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) approve(w http.ResponseWriter, r *http.Request) {
	d, err := h.C.AdminApprove(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *AdminHandler) reject(w http.ResponseWriter, r *http.Request) {
	var req RejectReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	o, err := h.C.AdminReject(r.Context(), chi.URLParam(r, "id"), adminID(r), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
