package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorDefaultsToStatusText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Not Found" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"lahore"}`))
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dst.Name != "lahore" {
		t.Fatalf("unexpected name %q", dst.Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(req, &dst); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	if err := DecodeJSON(req, &dst); !errors.Is(err, ErrUnknownBody) {
		t.Fatalf("expected ErrUnknownBody, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{header: "", wantErr: ErrNoBearer},
		{header: "Basic abc", wantErr: ErrBadBearer},
		{header: "Bearer ", wantErr: ErrBadBearer},
		{header: "Bearer abc.def", want: "abc.def"},
		{header: "bearer  xyz ", want: "xyz"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(req)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("header %q: expected %v, got %v", tt.header, tt.wantErr, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("header %q: got %q, %v", tt.header, got, err)
		}
	}
}
