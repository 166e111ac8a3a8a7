package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	svcerrors "github.com/coopfund/backoffice/internal/errors"
)

func TestWriteErrorValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/cooperatives", nil)

	WriteError(rec, req, svcerrors.FieldError("name", "name is required"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(svcerrors.CodeValidation) || body.Details["name"] != "name is required" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestWriteErrorHidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("internal error text leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(io.NopCloser(strings.NewReader(`{"name":"a","extra":1}`)), &dst)
	if !svcerrors.Is(err, svcerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x", nil)
	if v, err := QueryInt(req, "limit", 10); err != nil || v != 25 {
		t.Fatalf("limit = %d, %v", v, err)
	}
	if v, err := QueryInt(req, "missing", 10); err != nil || v != 10 {
		t.Fatalf("default = %d, %v", v, err)
	}
	if _, err := QueryInt(req, "bad", 0); err == nil {
		t.Fatalf("expected error for non-integer")
	}
}
