package router

import (
	"net/http"
	"strings"
)

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
}

func New() *Router {
	return &Router{mux: http.NewServeMux()}
}

func (rt *Router) Use(mw ...Middleware) {
	rt.middleware = append(rt.middleware, mw...)
}

func (rt *Router) Handle(pattern string, handler http.Handler) {
	rt.mux.Handle(normalize(pattern), handler)
}

func (rt *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	rt.mux.HandleFunc(normalize(pattern), handler)
}

// SubRouter mounts a new router under prefix. Middleware registered on the
// parent already wraps the sub-router; middleware added to the sub-router
// applies to its routes only.
func (rt *Router) SubRouter(prefix string) *Router {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		panic("empty subrouter prefix")
	}

	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	s := New()

	rt.mux.Handle(prefix+"/", http.StripPrefix(prefix, s))
	return s
}

// Group registers routes on rt that are additionally wrapped by mw, such as
// the pages that need a signed-in user.
func (rt *Router) Group(mw ...Middleware) *Group {
	return &Group{rt: rt, middleware: mw}
}

type Group struct {
	rt         *Router
	middleware []Middleware
}

func (g *Group) Handle(pattern string, handler http.Handler) {
	g.rt.Handle(pattern, chain(handler, g.middleware))
}

func (g *Group) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	g.Handle(pattern, http.HandlerFunc(handler))
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chain(rt.mux, rt.middleware).ServeHTTP(w, r)
}

// chain wraps h so that mw[0] runs first.
func chain(h http.Handler, mw []Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// normalize makes sure the path part of a pattern is rooted. Patterns may
// carry a method ("GET /photos/").
func normalize(pattern string) string {
	method, path, found := strings.Cut(pattern, " ")
	if !found {
		path = method
		method = ""
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if method == "" {
		return path
	}

	return method + " " + path
}
