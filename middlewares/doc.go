// Package middlewares holds the request pipeline shared by every FDM route:
// request IDs, panic recovery, deadlines, access logging, per-client rate
// limiting and CORS.
//
// Middlewares never write error responses themselves. Recover, Timeout and
// RateLimit return typed errors (*PanicError, *TimeoutError,
// *RateLimitError) which the application's error handler turns into 500,
// 504 and 429 responses.
//
//	app := web.New(
//	    web.WithLogger(log),
//	    web.WithMiddleware(
//	        middlewares.RequestID(),
//	        middlewares.Logging("/health/live", "/health/ready"),
//	        middlewares.Recover(),
//	        middlewares.Timeout(30*time.Second),
//	    ),
//	)
//
// Pair RequestIDExtractor with logger.New so every log record carries the
// request_id attribute.
package middlewares
