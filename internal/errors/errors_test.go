package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	if !IsInvalidInput(InvalidInput("field %s is required", "name")) {
		t.Error("Expected InvalidInput to classify as invalid input")
	}
	if !IsNotFound(NotFound("collection", "docs")) {
		t.Error("Expected NotFound to classify as not found")
	}
	if !IsUnavailable(Unavailable("embedding provider", errors.New("connection refused"))) {
		t.Error("Expected Unavailable to classify as unavailable")
	}

	plain := errors.New("something else")
	if IsInvalidInput(plain) || IsNotFound(plain) || IsUnavailable(plain) {
		t.Error("Expected plain error to match no category")
	}
}

func TestToHTTPStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", InvalidInput("bad field"), http.StatusBadRequest},
		{"not found", NotFound("conversation", "conv-1"), http.StatusNotFound},
		{"unavailable", Unavailable("store", errors.New("down")), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := ToHTTP(tt.err, true)
			if httpErr.StatusCode() != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, httpErr.StatusCode())
			}
		})
	}
}

func TestToHTTPWithholdsDetail(t *testing.T) {
	cause := Unavailable("ollama", errors.New("dial tcp: connection refused"))

	detailed := ToHTTP(cause, true)
	if detailed.Reason() == "external service unavailable" {
		t.Error("Expected detailed mode to carry the cause")
	}

	secure := ToHTTP(cause, false)
	if secure.Reason() != "external service unavailable" {
		t.Errorf("Expected generic reason in secure mode, got '%s'", secure.Reason())
	}
}
