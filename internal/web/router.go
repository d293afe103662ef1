package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router is what handlers see when declaring routes.
type Router interface {
	GET(path string, h HandlerFunc, mw ...Middleware)
	POST(path string, h HandlerFunc, mw ...Middleware)
	PUT(path string, h HandlerFunc, mw ...Middleware)
	PATCH(path string, h HandlerFunc, mw ...Middleware)
	DELETE(path string, h HandlerFunc, mw ...Middleware)

	// Group starts an inline group sharing middleware but no prefix.
	Group(fn func(r Router))
	// Route starts a group under a path prefix.
	Route(pattern string, fn func(r Router))
	// Use appends middleware for routes declared afterwards in this group.
	Use(mw ...Middleware)
	// Mount attaches a plain http.Handler.
	Mount(pattern string, h http.Handler)
}

type routerAdapter struct {
	mux chi.Router
	app *App
}

func (r *routerAdapter) GET(path string, h HandlerFunc, mw ...Middleware) {
	r.mux.Get(path, r.app.handler(chain(h, mw)))
}

func (r *routerAdapter) POST(path string, h HandlerFunc, mw ...Middleware) {
	r.mux.Post(path, r.app.handler(chain(h, mw)))
}

func (r *routerAdapter) PUT(path string, h HandlerFunc, mw ...Middleware) {
	r.mux.Put(path, r.app.handler(chain(h, mw)))
}

func (r *routerAdapter) PATCH(path string, h HandlerFunc, mw ...Middleware) {
	r.mux.Patch(path, r.app.handler(chain(h, mw)))
}

func (r *routerAdapter) DELETE(path string, h HandlerFunc, mw ...Middleware) {
	r.mux.Delete(path, r.app.handler(chain(h, mw)))
}

func (r *routerAdapter) Group(fn func(Router)) {
	r.mux.Group(func(sub chi.Router) {
		fn(&routerAdapter{mux: sub, app: r.app})
	})
}

func (r *routerAdapter) Route(pattern string, fn func(Router)) {
	r.mux.Route(pattern, func(sub chi.Router) {
		fn(&routerAdapter{mux: sub, app: r.app})
	})
}

func (r *routerAdapter) Use(mw ...Middleware) {
	for _, m := range mw {
		r.mux.Use(r.app.adapt(m))
	}
}

func (r *routerAdapter) Mount(pattern string, h http.Handler) {
	r.mux.Mount(pattern, h)
}

// chain applies mw so that mw[0] runs first.
func chain(h HandlerFunc, mw []Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
