package sales

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/caldera-erp/caldera-erp/internal/shared"
)

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idempotency := shared.NewIdempotencyStore(client, 0)

	handler := NewHandler(slog.New(slog.DiscardHandler), f.svc, idempotency)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func createBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(CreateSaleRequest{
		TenantID:    testTenant,
		ClientID:    testClient,
		PaymentType: "CASH",
		StaffName:   "Dana",
		Lines: []CreateSaleLineRequest{
			{ItemID: itemX, LocationID: locW1, Qty: dec("10"), UnitPrice: dec("100")},
		},
	})
	require.NoError(t, err)
	return body
}

func TestHandlerCreateSale(t *testing.T) {
	f, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/sales", "application/json", bytes.NewReader(createBody(t)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out CreateSaleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, int64(1), out.SequenceNumber)
	require.True(t, out.TotalAmount.Equal(dec("1000")))
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("40")))
}

func TestHandlerCreateSaleValidation(t *testing.T) {
	_, srv := newTestServer(t)

	body, _ := json.Marshal(CreateSaleRequest{TenantID: testTenant, ClientID: testClient, PaymentType: "BARTER"})
	resp, err := http.Post(srv.URL+"/api/sales", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandlerCreateSaleIdempotencyKey(t *testing.T) {
	_, srv := newTestServer(t)

	do := func() int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/sales", bytes.NewReader(createBody(t)))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "order-42")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusCreated, do())
	require.Equal(t, http.StatusConflict, do())
}

func TestHandlerCancelSale(t *testing.T) {
	f, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/sales", "application/json", bytes.NewReader(createBody(t)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	cancelURL := fmt.Sprintf("%s/api/sales/%d/cancel?tenant_id=%d", srv.URL, 1, testTenant)
	resp, err = http.Post(cancelURL, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))

	// Cancelling again hits the terminal-state guard.
	resp, err = http.Post(cancelURL, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerShowSale(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/sales", "application/json", bytes.NewReader(createBody(t)))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("%s/api/sales/1?tenant_id=%d", srv.URL, testTenant))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out SaleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "COMPLETED", out.Status)
	require.Equal(t, "PAID", out.PaymentStatus)
	require.Len(t, out.Lines, 1)
}

func TestHandlerShowSaleNotFound(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("%s/api/sales/99?tenant_id=%d", srv.URL, testTenant))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
