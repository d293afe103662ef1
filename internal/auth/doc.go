// Package auth resolves the signed session cookie to a principal and
// implements the sign-in flows: OAuth with PKCE for the configured
// providers and single-use magic links sent by mail.
//
// Routes that need a principal sit behind RequireSession:
//
//	r.Group(func(r web.Router) {
//	    r.Use(auth.RequireSession(resolver))
//	    r.GET("/farm", farms.list)
//	})
//
// Inside such a handler auth.PrincipalFrom(c) returns the principal.
package auth
