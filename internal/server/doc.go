// Package server is the self-hostable backend behind the synchronizer: sign-up, OAuth2 password and
// refresh grants, and a row API for the membership, progress and profile tables, all on sqlite.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// Routes may carry their own middleware, which runs inside the router-wide stack.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns.
//
// # Tokens
//
// Access tokens are HS256 JWTs signed by [TokenIssuer] and validated by the go-jwt-middleware validator.
// Refresh tokens are opaque, stored in sqlite, and single use.
//
// # Row API
//
// [RESTHandler] answers GET, POST, PATCH and DELETE on /rest/v1/{table}. Filters use the col=eq.value
// form, ordering uses order=col.asc|desc and limit caps the result. Every query is forced to the
// caller's user id.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
