// Package oauth implements the authorization-code flow with PKCE for the
// sign-in providers: Google and Microsoft (Entra ID).
//
// Each [Provider] builds an authorization URL, exchanges the returned code
// and fetches a normalised [UserInfo]. Providers refuse accounts whose email
// address is unverified with [ErrEmailNotVerified].
//
//	verifier := oauth2.GenerateVerifier()
//	http.Redirect(w, r, p.AuthCodeURL(state, verifier), http.StatusFound)
//
//	// callback
//	tok, err := p.Exchange(ctx, code, verifier)
//	info, err := p.FetchUserInfo(ctx, tok)
package oauth
