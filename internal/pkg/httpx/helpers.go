package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Rubix982/django-photo-edit/internal/pkg/serr"
)

func ReadJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(out)
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}

// PathID parses a numeric path value, answering 404 for anything else.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, serr.NotFound(err, "not found").With(name, raw)
	}

	return id, nil
}

// StatusOf returns the status code HandleErr would answer with.
func StatusOf(err error) int {
	var se *serr.ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}

	return http.StatusInternalServerError
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned by the RequestID middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// HandleErr logs err once and answers with the status and message of a
// *serr.ServiceError, or a bare 500 for anything else.
func HandleErr(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		"error", err,
		"request_id", RequestID(r.Context()),
		"method", r.Method,
		"url", r.URL.String(),
		"remote_addr", r.RemoteAddr,
	}

	var se *serr.ServiceError
	if errors.As(err, &se) {
		for k, v := range se.Env {
			attrs = append(attrs, k, v)
		}
		if se.Err != nil {
			attrs = append(attrs, "cause", se.Err)
		}

		slog.Error("request error", attrs...)
		http.Error(w, se.Msg, se.StatusCode)
		return
	}

	slog.Error("request error", attrs...)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
