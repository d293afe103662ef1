// Package cookie provides HTTP cookie management with signing and encryption.
//
// The Manager writes plain, signed (HMAC-SHA256) and encrypted (AES-256-GCM)
// cookies that share one set of attributes. Signed and encrypted operations
// return [ErrNoSecret] when no secret is configured.
//
//	m := cookie.New(
//		cookie.WithSecret(os.Getenv("AUTH_SECRET")),
//		cookie.WithPreviousSecrets(os.Getenv("AUTH_SECRET_PREVIOUS")),
//		cookie.WithSecure(true),
//	)
//
//	err := m.SetSigned(w, "fdm_session", token, 7*24*time.Hour)
//	token, err := m.GetSigned(r, "fdm_session")
//
// Secrets shorter than [MinSecretLength] bytes are silently ignored by the
// options; call [Validate] at startup to fail fast instead.
//
// # Errors
//
//   - [ErrNotFound]: cookie does not exist
//   - [ErrNoSecret]: secret required for signed or encrypted operations
//   - [ErrBadSecret]: secret is shorter than [MinSecretLength]
//   - [ErrBadSig]: signature verification failed
//   - [ErrDecrypt]: decryption failed
package cookie
