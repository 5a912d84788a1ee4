package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linktrail/linktrail/internal/auth"
	"github.com/linktrail/linktrail/internal/handler/dto"
	"github.com/linktrail/linktrail/internal/metrics"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/tracking"
)

func newConversionHandler(store *memStore, secret string) *ConversionHandler {
	resolver := tracking.NewResolver(store, store, metrics.NewNoop(), testLogger())
	recorder := tracking.NewConversionRecorder(store, store, store, store, metrics.NewNoop(), testLogger())
	cookies := tracking.NewCookieWriter(time.Hour, false)
	return NewConversionHandler(resolver, recorder, cookies, secret, testLogger())
}

func postConversion(t *testing.T, h *ConversionHandler, body any, prepare func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if prepare != nil {
		prepare(req)
	}

	rec := httptest.NewRecorder()
	h.Convert(rec, req)
	return rec
}

func TestConversionHandler_AttributedViaCookie(t *testing.T) {
	link := activeLink("link-1", "abc123", "newsletter")
	store := newMemStore(link)
	store.clicks["click-1"] = &model.Click{ID: "click-1", LinkID: "link-1", SessionID: "sess-1"}

	h := newConversionHandler(store, "")

	rec := postConversion(t, h, dto.ConversionRequest{
		OrderID:    "1001",
		OrderTotal: "49.90",
	}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: tracking.CookieLinkID, Value: "link-1"})
		req.AddCookie(&http.Cookie{Name: tracking.CookieClickID, Value: "click-1"})
		req.AddCookie(&http.Cookie{Name: tracking.CookieSessionID, Value: "sess-1"})
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp dto.ConversionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Attributed || resp.Duplicate {
		t.Fatalf("response = %+v, want attributed", resp)
	}
	if resp.LinkID != "link-1" || resp.Source != string(model.ResolvedByCookie) {
		t.Errorf("response = %+v, want link-1 via cookie", resp)
	}
	if resp.ClickID != "click-1" {
		t.Errorf("click id = %q, want click-1", resp.ClickID)
	}

	if store.convCount["link-1"] != 1 {
		t.Errorf("conversion increments = %d, want 1", store.convCount["link-1"])
	}

	// Attribution cookies cleared on success.
	cleared := 0
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge == -1 {
			cleared++
		}
	}
	if cleared == 0 {
		t.Error("expected cleared attribution cookies")
	}
}

func TestConversionHandler_UnattributedIsOK(t *testing.T) {
	h := newConversionHandler(newMemStore(), "")

	rec := postConversion(t, h, dto.ConversionRequest{OrderID: "2001", OrderTotal: "10.00"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp dto.ConversionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Attributed || resp.Duplicate || resp.LinkID != "" {
		t.Errorf("response = %+v, want unattributed", resp)
	}

	// No cookies touched on an unattributed conversion.
	if len(rec.Result().Cookies()) != 0 {
		t.Error("unattributed conversion must not clear cookies")
	}
}

func TestConversionHandler_DuplicateOrder(t *testing.T) {
	link := activeLink("link-1", "abc123", "newsletter")
	store := newMemStore(link)
	h := newConversionHandler(store, "")

	body := dto.ConversionRequest{OrderID: "3001", OrderTotal: "5.00", LinkID: "link-1"}

	first := postConversion(t, h, body, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := postConversion(t, h, body, nil)
	var resp dto.ConversionResponse
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Duplicate || resp.Attributed {
		t.Errorf("second response = %+v, want duplicate", resp)
	}
	if store.convCount["link-1"] != 1 {
		t.Error("duplicate order must not double-count")
	}
}

func TestConversionHandler_Validation(t *testing.T) {
	h := newConversionHandler(newMemStore(), "")

	rec := postConversion(t, h, dto.ConversionRequest{OrderTotal: "5.00"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing order id status = %d, want 400", rec.Code)
	}

	rec = postConversion(t, h, dto.ConversionRequest{OrderID: "x", OrderTotal: "-1.00"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative total status = %d, want 400", rec.Code)
	}

	rec = postConversion(t, h, dto.ConversionRequest{OrderID: "x", OrderTotal: "not-a-number"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed total status = %d, want 400", rec.Code)
	}
}

func TestConversionHandler_SignatureRequired(t *testing.T) {
	h := newConversionHandler(newMemStore(), "hook-secret")

	// No signature headers at all.
	rec := postConversion(t, h, dto.ConversionRequest{OrderID: "4001"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", rec.Code)
	}

	// Correctly signed request passes.
	payload, _ := json.Marshal(dto.ConversionRequest{OrderID: "4001"})
	ts := time.Now().Unix()
	sig := auth.GenerateSignature("hook-secret", ts, payload)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversions", bytes.NewReader(payload))
	req.Header.Set(SignatureHeader, sig)
	req.Header.Set(TimestampHeader, fmt.Sprintf("%d", ts))

	out := httptest.NewRecorder()
	h.Convert(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("signed status = %d, body %s", out.Code, out.Body.String())
	}

	// Tampered body is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/conversions", bytes.NewReader([]byte(`{"order_id":"9999"}`)))
	req.Header.Set(SignatureHeader, sig)
	req.Header.Set(TimestampHeader, fmt.Sprintf("%d", ts))

	out = httptest.NewRecorder()
	h.Convert(out, req)
	if out.Code != http.StatusUnauthorized {
		t.Fatalf("tampered status = %d, want 401", out.Code)
	}
}

func TestConversionHandler_CaptureCheckout(t *testing.T) {
	store := newMemStore()
	store.signals["session:sess-1"] = &model.AttributionRecord{LinkID: "link-1"}

	h := newConversionHandler(store, "")

	payload, _ := json.Marshal(dto.CheckoutRequest{Email: "alice@example.com", SessionID: "sess-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkouts", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	h.CaptureCheckout(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	key := "email:" + tracking.HashEmail("alice@example.com")
	if _, ok := store.signals[key]; !ok {
		t.Error("email signal not captured")
	}
}
