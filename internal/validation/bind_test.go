package validation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func bind(t *testing.T, body string, out interface{}) (*httptest.ResponseRecorder, map[string]interface{}, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	err := BindAndValidate(c, out, New())
	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		if jerr := json.Unmarshal(w.Body.Bytes(), &resp); jerr != nil {
			t.Fatalf("decode body %q: %v", w.Body.String(), jerr)
		}
	}
	return w, resp, err
}

func TestBindAndValidate_FieldErrorsUseJSONPaths(t *testing.T) {
	body := `{"amount":0,"currency":"us","customer":{"email":"nope","name":"  "},"package_id":42}`
	var req CreateIntentRequest
	w, resp, err := bind(t, body, &req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp["error"] != "validation_failed" || resp["message"] != FieldsMessage {
		t.Fatalf("unexpected body: %v", resp)
	}
	fields, ok := resp["fields"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected fields object, got %v", resp["fields"])
	}
	want := map[string]string{
		"amount":         "required",
		"currency":       "must be 3 characters",
		"customer.email": "must be a valid email address",
		"customer.name":  "must not be blank",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("field %s: expected %q, got %v (all: %v)", k, v, fields[k], fields)
		}
	}
	if len(fields) != len(want) {
		t.Fatalf("unexpected extra fields: %v", fields)
	}
}

func TestBindAndValidate_WrongTypeIsFieldError(t *testing.T) {
	var req RefundRequest
	_, resp, err := bind(t, `{"payment_id":"pi_1","amount":"ten"}`, &req)
	if err == nil {
		t.Fatal("expected an error")
	}
	fields, _ := resp["fields"].(map[string]interface{})
	if resp["error"] != "validation_failed" || fields["amount"] != "has the wrong type" {
		t.Fatalf("unexpected body: %v", resp)
	}
}

func TestBindAndValidate_MalformedJSON(t *testing.T) {
	var req RefundRequest
	w, resp, err := bind(t, `{"payment_id":`, &req)
	if err == nil || w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %d (%v)", w.Code, err)
	}
	if resp["error"] != "invalid_request_body" || resp["message"] == "" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if _, ok := resp["fields"]; ok {
		t.Fatalf("malformed body must not report fields: %v", resp)
	}
}

func TestBindAndValidate_ValidWritesNothing(t *testing.T) {
	var req RefundRequest
	w, _, err := bind(t, `{"payment_id":"pi_1","amount":500}`, &req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected no response written, got %s", w.Body.String())
	}
	if req.PaymentID != "pi_1" || req.Amount != 500 {
		t.Fatalf("unexpected bind result: %+v", req)
	}
}
