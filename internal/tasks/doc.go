// Package tasks orchestrates catalog operations with real-time progress reporting.
//
// # Core Operations
//
// [CatalogEngine] offers four operations:
//
//  1. [CatalogEngine.Rows] : Fetch the rows of a page (home, movies, tv, new)
//     - Every row is fetched concurrently
//     - A failed row carries its error; the page fails only when every row failed
//
//  2. [CatalogEngine.Details] : Fetch one title with its genres, cast and trailer
//
//  3. [CatalogEngine.ResolveTitles] : Turn watchlist or liked items into titles
//     - Lookups run on a bounded worker pool and keep the order of the input
//     - Items that cannot be resolved keep a nil title
//
//  4. [CatalogEngine.ExportLists] : Write lists to disk in CSV, Markdown, text or JSON with a manifest
//
// [CatalogEngine.FindGenre] resolves a genre name with fuzzy matching for the genre browse command.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
