package web

// Handler declares routes on a router.
//
//	type FarmHandler struct{ loader *loader.Loader }
//
//	func (h *FarmHandler) Routes(r web.Router) {
//	    r.GET("/farm", h.list)
//	}
type Handler interface {
	Routes(r Router)
}

// HandlerFunc handles a request. A returned error is passed to the app's
// ErrorHandler unless a response was already written.
type HandlerFunc func(c Context) error

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// ErrorHandler renders an error returned by a handler.
type ErrorHandler func(c Context, err error) error
