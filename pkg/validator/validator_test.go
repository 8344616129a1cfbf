package validator_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgvalidator "github.com/ghuser/campusreserve/pkg/validator"
)

const sampleItemID = "550e8400-e29b-41d4-a716-446655440000"

type sampleStruct struct {
	ItemID string `validate:"required,uuid"`
	Note   string `validate:"omitempty,max=10"`
	Days   int    `validate:"required,min=1,max=30"`
	Kind   string `validate:"omitempty,oneof=book equipment"`
}

func TestValidate_valid(t *testing.T) {
	s := sampleStruct{ItemID: sampleItemID, Note: "hello", Days: 7, Kind: "book"}
	if err := pkgvalidator.Validate(&s); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestValidate_missingRequired(t *testing.T) {
	s := sampleStruct{}
	if err := pkgvalidator.Validate(&s); err == nil {
		t.Fatal("expected validation error for empty struct")
	}
}

func TestFormatValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    sampleStruct
		field string
		want  string
	}{
		{"required", sampleStruct{Days: 1}, "ItemID", "This field is required"},
		{"uuid", sampleStruct{ItemID: "not-a-uuid", Days: 1}, "ItemID", "Must be a valid UUID"},
		{"string max", sampleStruct{ItemID: sampleItemID, Days: 1, Note: "12345678901"}, "Note", "Maximum length is 10"},
		{"numeric max", sampleStruct{ItemID: sampleItemID, Days: 31}, "Days", "Must be at most 30"},
		{"numeric min", sampleStruct{ItemID: sampleItemID, Days: -2}, "Days", "Must be at least 1"},
		{"oneof", sampleStruct{ItemID: sampleItemID, Days: 1, Kind: "vehicle"}, "Kind", "Must be one of: book equipment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := pkgvalidator.FormatValidationErrors(pkgvalidator.Validate(&tt.in))
			if m[tt.field] != tt.want {
				t.Errorf("unexpected %s message: %q (all: %v)", tt.field, m[tt.field], m)
			}
		})
	}
}

func TestFormatValidationErrors_wrapped(t *testing.T) {
	err := fmt.Errorf("decode: %w", pkgvalidator.Validate(&sampleStruct{Days: 1}))
	m := pkgvalidator.FormatValidationErrors(err)
	if m["ItemID"] != "This field is required" {
		t.Errorf("expected wrapped validation errors to be unwrapped, got %v", m)
	}
}

func TestFormatValidationErrors_nonValidationError(t *testing.T) {
	m := pkgvalidator.FormatValidationErrors(errors.New("boom"))
	if len(m) != 0 {
		t.Errorf("expected empty map for non-validation error, got %v", m)
	}
}

// --- ValidateRequest ---

type openReq struct {
	ItemID       string `json:"item_id"       validate:"required,uuid"`
	DurationDays int    `json:"duration_days" validate:"required,gte=1,lte=30"`
}

func TestValidateRequest_valid(t *testing.T) {
	body := `{"item_id":"` + sampleItemID + `","duration_days":14}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	req, ok := pkgvalidator.ValidateRequest[openReq](w, r)
	if !ok {
		t.Fatalf("expected ok=true, got false. Response: %s", w.Body.String())
	}
	if req.DurationDays != 14 {
		t.Errorf("unexpected DurationDays: %d", req.DurationDays)
	}
}

func TestValidateRequest_invalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{bad json"))
	w := httptest.NewRecorder()

	_, ok := pkgvalidator.ValidateRequest[openReq](w, r)
	if ok {
		t.Fatal("expected ok=false for malformed JSON")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid JSON") {
		t.Errorf("expected 'Invalid JSON' in body, got: %s", w.Body.String())
	}
}

func TestValidateRequest_missingField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"duration_days":3}`))
	w := httptest.NewRecorder()

	_, ok := pkgvalidator.ValidateRequest[openReq](w, r)
	if ok {
		t.Fatal("expected ok=false for missing item_id")
	}
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "item_id") {
		t.Errorf("expected json field name in body, got: %s", w.Body.String())
	}
}

func TestValidateRequest_durationOutOfRange(t *testing.T) {
	body := `{"item_id":"` + sampleItemID + `","duration_days":45}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	_, ok := pkgvalidator.ValidateRequest[openReq](w, r)
	if ok {
		t.Fatal("expected ok=false for duration over 30 days")
	}
	if !strings.Contains(w.Body.String(), "less than or equal to 30") {
		t.Errorf("expected lte message in body, got: %s", w.Body.String())
	}
}

func TestValidateRequest_trailingData(t *testing.T) {
	body := `{"item_id":"` + sampleItemID + `","duration_days":3} {"duration_days":9}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	if _, ok := pkgvalidator.ValidateRequest[openReq](w, r); ok {
		t.Fatal("expected ok=false for a body with two JSON values")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestValidateRequest_bodyTooLarge(t *testing.T) {
	body := `{"item_id":"` + sampleItemID + `","duration_days":3}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.Body = http.MaxBytesReader(w, r.Body, 8)

	if _, ok := pkgvalidator.ValidateRequest[openReq](w, r); ok {
		t.Fatal("expected ok=false for an oversized body")
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}
