package middleware

import (
	"fmt"
	"net/http"

	"github.com/Rubix982/django-photo-edit/internal/pkg/httpx"
	"github.com/Rubix982/django-photo-edit/internal/pkg/router"
	"github.com/Rubix982/django-photo-edit/internal/pkg/serr"
)

// Recover turns a panicking handler into a 500. http.ErrAbortHandler is
// re-raised so the server can drop the connection.
func Recover() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				se := serr.NewServiceError(fmt.Errorf("panic: %v", v), http.StatusInternalServerError, "Internal Server Error")
				httpx.HandleErr(w, r, se.With("stack_trace", se.StackTrace))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
