// Package authkit is the Go client for the backing authentication service.
//
// The backing service owns credentials, refresh tokens and TOTP factor
// secrets. This package wraps its HTTP API in two layers:
//
//   - Client: unauthenticated operations (sign-up, password and refresh
//     grants) plus construction of Sessions.
//   - Session: operations performed as a signed-in user (factor enrollment,
//     challenges, verification). Sessions refresh their access token
//     automatically shortly before expiry.
//
// Errors coming back from the service are surfaced as *APIError values with
// the service's error code preserved, so callers can branch on semantics
// rather than status codes.
package authkit
