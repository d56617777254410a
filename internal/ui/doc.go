// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [BrowseView] : Tabs for trending titles, My List and Liked
//  2. [DetailView] : Details, cast and trailer of one title
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Membership toggles go through the [membership.Reconciler] of each set, so the badges update optimistically and
// rollbacks arrive as notifications from the [notify.Bus]. Notifications and load errors are shown in a status line
// and never end the program.
//
// Keyboard navigation uses vim-style bindings (j/k, tab, enter, esc, w, l, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
