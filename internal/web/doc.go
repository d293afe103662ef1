// Package web is the HTTP layer of FDM: a chi router behind a Context
// interface that carries the request, a status-tracking response writer,
// cookies, the signed session and the background job queue.
//
// Handlers return errors instead of writing them. The App routes every
// returned error to a single ErrorHandler, which decides between a JSON
// body, a plain-text body and a redirect.
//
//	app := web.New(
//	    web.WithLogger(log),
//	    web.WithSessionManager(sessions),
//	    web.WithErrorHandler(handlers.Errors(log)),
//	    web.WithHandlers(farms, fields),
//	)
//	return web.Run(app, web.Address(":8080"), web.ShutdownHook(jobs.Shutdown))
//
// A session is loaded lazily the first time Session is called and is
// written back automatically, right before the response header is sent,
// if it was modified.
package web
