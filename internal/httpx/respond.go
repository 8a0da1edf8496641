package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const maxBodySize = 1 << 20 // 1MB

var (
	ErrEmptyBody   = errors.New("request body is empty")
	ErrUnknownBody = errors.New("request body contains unexpected data")
	ErrNoBearer    = errors.New("authorization header missing")
	ErrBadBearer   = errors.New("authorization header must be Bearer token")
)

// DecodeJSON reads a single JSON value of at most 1MB into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}

	if decoder.More() {
		return ErrUnknownBody
	}

	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.S().Warnw("write json failed", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	WriteJSON(w, status, map[string]string{"error": message})
}

func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrNoBearer
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrBadBearer
	}
	return strings.TrimSpace(parts[1]), nil
}
