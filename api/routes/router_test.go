package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillpoint-terminal/internal/invoices"
	"github.com/angelmondragon/tillpoint-terminal/internal/session"
	"github.com/angelmondragon/tillpoint-terminal/internal/syncer"
	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore/memory"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	"github.com/angelmondragon/tillpoint-terminal/pkg/kv"
)

func newTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	ctx := context.Background()

	local := memory.New()
	storage, err := kv.OpenFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.Terminal = config.TerminalConfig{StoreCode: "S01", TerminalCode: "T01"}

	sess, err := session.New(session.Params{
		Local:    local,
		Storage:  storage,
		Terminal: cfg.Terminal,
	})
	require.NoError(t, err)

	mgr, err := invoices.New(invoices.Params{
		Local:   local,
		Session: sess,
		Storage: storage,
		TaxRate: decimal.RequireFromString("0.15"),
	})
	require.NoError(t, err)

	sync, err := syncer.New(syncer.Params{
		Local:       local,
		Checkpoints: storage,
	})
	require.NoError(t, err)

	seed := func(id string, docType enums.DocType, payload any) {
		doc, err := docstore.NewDocument(id, docType, payload)
		require.NoError(t, err)
		_, err = local.Put(ctx, doc)
		require.NoError(t, err)
	}
	seed("pos_profile:front", enums.DocTypePOSProfile, docstore.POSProfile{
		ID:         "pos_profile:front",
		ExternalID: "Front Register",
		PriceList:  "Standard Selling",
	})
	seed("item:coffee", enums.DocTypeItem, docstore.Item{
		ID:       "item:coffee",
		Name:     "Coffee",
		Code:     "CF-01",
		BaseRate: decimal.RequireFromString("20.00"),
	})
	seed("customer:walkin", enums.DocTypeCustomer, docstore.Customer{
		ID:   "customer:walkin",
		Name: "Walk-in Customer",
	})

	handler := NewRouter(Params{
		Config:   cfg,
		Local:    local,
		Session:  sess,
		Invoices: mgr,
		Syncer:   sync,
		Registry: prometheus.NewRegistry(),
	})
	return handler, local
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func dataOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestHealthEndpoints(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dev", rec.Header().Get("X-TillPoint-Env"))

	rec = doJSON(t, handler, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "unconfigured", dataOf(t, rec)["remote"])
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/init",
		map[string]string{"profile_name": "Front Register"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/prices?item_code=CF-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items",
		map[string]any{"item_id": "item:coffee", "qty": "2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/customer",
		map[string]any{"customer_id": "customer:walkin"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/payment",
		map[string]any{"method": "cash", "cash_received": "50.00"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/invoices", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var envelope struct {
		Data docstore.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "S01/T01/00001", envelope.Data.ID)
	require.True(t, envelope.Data.TotalAmount.Equal(decimal.RequireFromString("46.00")))

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices/S01/T01/00001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDraftFlowOverHTTP(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/init",
		map[string]string{"profile_name": "Front Register"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items",
		map[string]any{"item_id": "item:coffee", "qty": "1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/drafts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var saved struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.NotEmpty(t, saved.Data.ID)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/drafts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/drafts/resume/"+saved.Data.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/drafts/"+saved.Data.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationErrorsSurfaceAsEnvelopes(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", map[string]any{"qty": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}

func TestPriceLookupBeforeInitIsConfigurationError(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/prices?item_id=item:coffee", nil)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestMetricsEndpointExposed(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncStatusEndpoint(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataOf(t, rec)
	require.Equal(t, true, data["local"])
	require.Equal(t, false, data["remote"])
}

func TestInvoiceHistoryListing(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/init",
		map[string]string{"profile_name": "Front Register"})
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 2; i++ {
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items",
			map[string]any{"item_id": "item:coffee", "qty": "1"})
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/customer",
			map[string]any{"customer_id": "customer:walkin"})
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/payment",
			map[string]any{"method": "cash", "cash_received": "23.00"})
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/invoices", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data invoices.InvoicePage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Invoices, 1)
	require.Equal(t, "S01/T01/00002", envelope.Data.Invoices[0].ID)
	require.NotEmpty(t, envelope.Data.NextCursor)

	rec = doJSON(t, handler, http.MethodGet,
		"/api/v1/invoices?limit=1&cursor="+url.QueryEscape(envelope.Data.NextCursor), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Invoices, 1)
	require.Equal(t, "S01/T01/00001", envelope.Data.Invoices[0].ID)
}
