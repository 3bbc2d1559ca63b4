package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vditaxi/globals"
)

func TestRespondWithErrorUsesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, http.StatusConflict, "slot already occupied by Anna")

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["detail"] != "slot already occupied by Anna" {
		t.Fatalf("body = %v", body)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope"))
	var v struct{}
	if DecodeJSON(rec, req, &v) {
		t.Fatal("expected decode failure")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetUserIDFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetUserIDFromRequest(req); got != 0 {
		t.Fatalf("anonymous id = %d", got)
	}
	req = req.WithContext(context.WithValue(req.Context(), globals.UserIDKey, int64(7)))
	if got := GetUserIDFromRequest(req); got != 7 {
		t.Fatalf("id = %d", got)
	}
}

func TestParseInt64(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{" 7 ", 7, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseInt64(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseInt64(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&bad=x", nil)
	if got := QueryInt(req, "limit", 20); got != 5 {
		t.Fatalf("limit = %d", got)
	}
	if got := QueryInt(req, "bad", 20); got != 20 {
		t.Fatalf("bad = %d", got)
	}
	if got := QueryInt(req, "missing", 20); got != 20 {
		t.Fatalf("missing = %d", got)
	}
}
