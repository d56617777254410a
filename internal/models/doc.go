// Package models defines domain entities shared by the flx client, the backend server and the terminal UI.
//
// The package contains three categories of types:
//
// 1. Membership: the local-first sets kept for each user
//   - [MediaType] : movie or tv
//   - [MembershipItem] : one (media id, media type) entry of a watchlist or liked set
//   - [ItemState] and [Entry] : optimistic lifecycle of an item (pending, confirmed, rolled back)
//
// 2. Account data stored by the backend
//   - [User], [Profile], [RefreshToken]
//   - [WatchProgress] : continue-watching rows keyed by user, media id and media type
//
// 3. Catalog DTOs decoded from the metadata API
//   - [Movie], [TVShow], [MovieDetails], [TVShowDetails], [Page]
//   - [Video], [Credits], [Genre]
//   - [Title] : a media-type agnostic view used by rows and exports
//
// [ListExport] and [ExportResult] describe list exports written by the formatter.
//
// Persistent entities implement [Validator] so repositories can reject bad rows before touching the database.
package models
