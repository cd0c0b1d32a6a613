package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
	"go.uber.org/zap"
)

func newServer(t *testing.T, secrets ...string) *httptest.Server {
	t.Helper()
	inv := inventory.NewMemoryStore()
	c := orders.NewCoordinator(inv, orders.NewMemoryRepo(), orders.Options{AdminIDs: []string{"admin"}})

	r := NewRouter(zap.NewNop())
	(&OrdersHandler{C: c, Idem: redisx.NewMemoryClaimer(), Log: zap.NewNop()}).Register(r)
	(&AdminHandler{C: c}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	do(t, srv, http.MethodPost, "/admin/products", "admin", ProductReq{ID: "netflix", Name: "Netflix Premium"}, http.StatusCreated, nil)
	do(t, srv, http.MethodPost, "/admin/products/netflix/packages", "admin", PackageReq{ID: "1m", Name: "1 bulan", Price: 1000}, http.StatusCreated, nil)
	if len(secrets) > 0 {
		do(t, srv, http.MethodPost, "/admin/products/netflix/packages/1m/credentials", "admin", RestockReq{Secrets: secrets}, http.StatusCreated, nil)
	}
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, admin string, body any, want int, out any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequestWithContext(context.Background(), method, srv.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if admin != "" {
		req.Header.Set(HeaderAdminID, admin)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("%s %s: status %d, want %d (%v)", method, path, resp.StatusCode, want, e)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	srv := newServer(t, "user:pass")

	var created CreateOrderResp
	do(t, srv, http.MethodPost, "/orders", "", CreateOrderReq{ExternalID: "x1", UserID: "42", ProductID: "netflix", PackageID: "1m"}, http.StatusCreated, &created)
	if created.Order.State != orders.StateAwaitingProof {
		t.Fatalf("unexpected state %s", created.Order.State)
	}
	id := created.Order.ID

	var again CreateOrderResp
	do(t, srv, http.MethodPost, "/orders", "", CreateOrderReq{ExternalID: "x1", UserID: "42", ProductID: "netflix", PackageID: "1m"}, http.StatusOK, &again)
	if !again.Idempotent || again.Order.ID != id {
		t.Fatalf("expected idempotent replay of %s, got %+v", id, again)
	}

	do(t, srv, http.MethodPost, "/orders/"+id+"/proof", "", ProofReq{UserID: "43"}, http.StatusForbidden, nil)
	do(t, srv, http.MethodPost, "/orders/"+id+"/proof", "", ProofReq{UserID: "42", ProofRef: "photo"}, http.StatusOK, nil)
	do(t, srv, http.MethodPost, "/admin/orders/"+id+"/approve", "42", nil, http.StatusForbidden, nil)

	var pending []orders.Order
	do(t, srv, http.MethodGet, "/admin/orders/pending", "admin", nil, http.StatusOK, &pending)
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("unexpected pending list %+v", pending)
	}

	var d orders.Delivery
	do(t, srv, http.MethodPost, "/admin/orders/"+id+"/approve", "admin", nil, http.StatusOK, &d)
	if d.Secret != "user:pass" || d.Order.State != orders.StateFulfilled {
		t.Fatalf("unexpected delivery %+v", d)
	}
	do(t, srv, http.MethodPost, "/admin/orders/"+id+"/approve", "admin", nil, http.StatusConflict, nil)

	var rep inventory.StockReport
	do(t, srv, http.MethodGet, "/admin/products/netflix/stock", "admin", nil, http.StatusOK, &rep)
	if len(rep.Packages) != 1 || rep.Packages[0].Delivered != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)

	var body map[string]any
	do(t, srv, http.MethodPost, "/orders", "", CreateOrderReq{UserID: "42", ProductID: "netflix", PackageID: "1m"}, http.StatusConflict, &body)
	if body["error"] != "out_of_stock" || body["order"] == nil {
		t.Fatalf("expected out_of_stock with order, got %v", body)
	}
	do(t, srv, http.MethodGet, "/orders/missing", "", nil, http.StatusNotFound, nil)
	do(t, srv, http.MethodPost, "/orders", "", map[string]string{"user_id": "42"}, http.StatusBadRequest, nil)
	do(t, srv, http.MethodPost, "/admin/products", "admin", ProductReq{ID: "netflix", Name: "dup"}, http.StatusConflict, nil)
	do(t, srv, http.MethodPost, "/admin/products", "", ProductReq{ID: "canva", Name: "Canva"}, http.StatusForbidden, nil)
	do(t, srv, http.MethodPut, "/admin/products/netflix/packages/1m/price", "admin", PriceReq{Price: 0}, http.StatusBadRequest, nil)
}

func TestRejectWithoutBody(t *testing.T) {
	srv := newServer(t, "a")

	var created CreateOrderResp
	do(t, srv, http.MethodPost, "/orders", "", CreateOrderReq{UserID: "42", ProductID: "netflix", PackageID: "1m"}, http.StatusCreated, &created)
	id := created.Order.ID
	do(t, srv, http.MethodPost, "/orders/"+id+"/proof", "", ProofReq{UserID: "42"}, http.StatusOK, nil)

	var o orders.Order
	do(t, srv, http.MethodPost, "/admin/orders/"+id+"/reject", "admin", nil, http.StatusOK, &o)
	if o.State != orders.StateExpired || o.Reason != orders.ReasonRejected {
		t.Fatalf("unexpected order %+v", o)
	}

	var pkgs []inventory.PackageAvailability
	do(t, srv, http.MethodGet, "/products/netflix/packages", "", nil, http.StatusOK, &pkgs)
	if len(pkgs) != 1 || pkgs[0].Available != 1 {
		t.Fatalf("credential not back in pool: %+v", pkgs)
	}
}
