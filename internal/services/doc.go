// Package services implements the HTTP clients used by flx.
//
// # Metadata API
//
// [TMDBClient] reads the catalog from The Movie Database. Every request carries the api_key
// query parameter, is rate limited with [rate.Limiter], and is cached for a configurable TTL
// (one hour by default) through a [ResponseCache], normally the bbolt-backed catalog bucket
// of the local store. Non-2xx responses become a [shared.APIError] wrapping [shared.ErrTransport].
//
// Image helpers build poster and backdrop URLs and fall back to a placeholder when a path is missing.
//
// # Backend
//
// [BackendClient] speaks the row-storage contract of the backend: select, insert, upsert, update
// and delete against /rest/v1/{table} with eq. filters. Requests carry the anon key and, when a
// [oauth2.TokenSource] is attached, the caller's bearer token. Status codes are classified with
// [shared.ClassifyStatus], so callers test with errors.Is against the error taxonomy:
//   - [shared.ErrAuth] : 401 or 403
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrConflict] : 409
//   - [shared.ErrTransport] : any other failure, including network errors
//
// # Raw requests
//
// [APIService] is the shared transport. It returns an [APIResponse] for any status and is
// exposed directly through the `flx api` commands.
package services
