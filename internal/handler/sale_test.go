package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/token-sale/internal/config"
	"github.com/iliyamo/token-sale/internal/sale"
	"github.com/iliyamo/token-sale/internal/token"
)

const (
	testAdmin    = "0xad00000000000000000000000000000000000000"
	testInvestor = "0xaa00000000000000000000000000000000000001"
	testReserve  = "0x0000000000000000000000000000000000000001"
)

type saleFixture struct {
	h     *SaleHandler
	clock *time.Time
}

func newSaleFixture(t *testing.T) *saleFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	ledger := token.NewLedger("Sale Token", "SLT", 0, 100000, testReserve)
	vault := token.NewVault()
	engine := sale.NewEngine(testAdmin, testReserve, ledger, vault, sale.NopJournal{}, func() time.Time { return *clock })
	h := NewSaleHandler(engine, ledger, vault, nil, nil, config.CacheConfig{Prefix: "test-cache"})
	return &saleFixture{h: h, clock: clock}
}

// doJSON runs a handler against a synthetic request. addr empty means
// no identity in context.
func doJSON(t *testing.T, fn echo.HandlerFunc, method, target, addr, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if addr != "" {
		c.Set("addr", addr)
	}
	if err := fn(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return out
}

func startSale(t *testing.T, f *saleFixture) {
	t.Helper()
	body := `{"duration_seconds":60,"price":"1","available_tokens":"1000","min_purchase":"10","max_purchase":"500"}`
	rec := doJSON(t, f.h.StartSale, http.MethodPost, "/v1/sale/start", testAdmin, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start sale: got %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
}

func TestGetToken(t *testing.T) {
	f := newSaleFixture(t)
	rec := doJSON(t, f.h.GetToken, http.MethodGet, "/v1/token", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["symbol"] != "SLT" {
		t.Errorf("symbol = %v, want SLT", body["symbol"])
	}
	if body["total_supply"] != "100000" {
		t.Errorf("total_supply = %v, want 100000", body["total_supply"])
	}
}

func TestGetSaleUnconfigured(t *testing.T) {
	f := newSaleFixture(t)
	rec := doJSON(t, f.h.GetSale, http.MethodGet, "/v1/sale", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["lifecycle"] != "UNCONFIGURED" {
		t.Errorf("lifecycle = %v, want UNCONFIGURED", body["lifecycle"])
	}
	if _, ok := body["end"]; ok {
		t.Error("unconfigured sale should not report an end time")
	}
}

func TestStartSale(t *testing.T) {
	f := newSaleFixture(t)
	startSale(t, f)

	rec := doJSON(t, f.h.GetSale, http.MethodGet, "/v1/sale", "", "")
	body := decodeBody(t, rec)
	if body["lifecycle"] != "ACTIVE" {
		t.Errorf("lifecycle = %v, want ACTIVE", body["lifecycle"])
	}
	if body["available_tokens"] != "1000" {
		t.Errorf("available_tokens = %v, want 1000", body["available_tokens"])
	}
	if body["min_purchase"] != "10" || body["max_purchase"] != "500" {
		t.Errorf("bounds = %v/%v, want 10/500", body["min_purchase"], body["max_purchase"])
	}
}

func TestStartSaleNotAdmin(t *testing.T) {
	f := newSaleFixture(t)
	body := `{"duration_seconds":60,"price":"1","available_tokens":"1000","min_purchase":"10","max_purchase":"500"}`
	rec := doJSON(t, f.h.StartSale, http.MethodPost, "/v1/sale/start", testInvestor, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["error"] != "only admin" {
		t.Errorf("error = %v, want %q", resp["error"], "only admin")
	}
}

func TestStartSaleBadAmount(t *testing.T) {
	f := newSaleFixture(t)
	body := `{"duration_seconds":60,"price":"one","available_tokens":"1000","min_purchase":"10","max_purchase":"500"}`
	rec := doJSON(t, f.h.StartSale, http.MethodPost, "/v1/sale/start", testAdmin, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestApproveInvestor(t *testing.T) {
	f := newSaleFixture(t)
	rec := doJSON(t, f.h.ApproveInvestor, http.MethodPost, "/v1/sale/investors", testAdmin,
		`{"address":"`+testInvestor+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if !f.h.Engine.IsApproved(testInvestor) {
		t.Error("investor not whitelisted after approve")
	}
}

func TestWithdrawWhileActive(t *testing.T) {
	f := newSaleFixture(t)
	startSale(t, f)
	rec := doJSON(t, f.h.Withdraw, http.MethodPost, "/v1/sale/withdraw", testAdmin,
		`{"recipient":"`+testInvestor+`","amount":"10"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409 (%s)", rec.Code, rec.Body.String())
	}
}

func TestGetPurchaseNotFound(t *testing.T) {
	f := newSaleFixture(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/sale/purchases/3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("index")
	c.SetParamValues("3")
	if err := f.h.GetPurchase(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestListPurchasesEmpty(t *testing.T) {
	f := newSaleFixture(t)
	rec := doJSON(t, f.h.ListPurchases, http.MethodGet, "/v1/sale/purchases", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(0) {
		t.Errorf("count = %v, want 0", body["count"])
	}
}

func TestMyAccount(t *testing.T) {
	f := newSaleFixture(t)
	startSale(t, f)
	if rec := doJSON(t, f.h.ApproveInvestor, http.MethodPost, "/v1/sale/investors", testAdmin,
		`{"address":"`+testInvestor+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("approve: got %d", rec.Code)
	}

	rec := doJSON(t, f.h.MyAccount, http.MethodGet, "/v1/sale/account", testInvestor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["approved"] != true {
		t.Errorf("approved = %v, want true", body["approved"])
	}
	if body["pending_tokens"] != "0" || body["token_balance"] != "0" {
		t.Errorf("fresh account should hold nothing, got %v pending / %v balance",
			body["pending_tokens"], body["token_balance"])
	}
}

func TestMyAccountNoIdentity(t *testing.T) {
	f := newSaleFixture(t)
	rec := doJSON(t, f.h.MyAccount, http.MethodGet, "/v1/sale/account", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}
