// Package auth guards the tiercache admin surface with HS256 bearer tokens.
//
// A JWTAuthenticator validates "Authorization: Bearer <token>" headers
// against a shared secret and yields an Identity. Middleware turns that into
// HTTP behavior: 401 for missing or bad tokens, 403 when a required role is
// absent, and the Identity in the request context otherwise.
package auth
