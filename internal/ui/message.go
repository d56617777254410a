package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/flx/internal/membership"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/notify"
	"github.com/desertthunder/flx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRowsFetched MsgKind = iota
	MsgTitlesResolved
	MsgDetailsFetched
	MsgToggled
	MsgNotification
	MsgSetChanged
	MsgStatusExpired
)

type rowsFetched struct {
	rows []tasks.Row
	err  error
}

type titlesResolved struct {
	entries []models.ListEntry
	err     error
}

type detailsFetched struct {
	details *tasks.Details
	err     error
}

type toggled struct {
	kind   membership.Kind
	key    models.Key
	member bool
	err    error
}

// rowsFetchedMsg is the constructor for [MsgRowsFetched]
func rowsFetchedMsg(rows []tasks.Row, err error) Msg {
	return Msg{kind: MsgRowsFetched, data: rowsFetched{rows, err}}
}

// titlesResolvedMsg is the constructor for [MsgTitlesResolved]
func titlesResolvedMsg(entries []models.ListEntry, err error) Msg {
	return Msg{kind: MsgTitlesResolved, data: titlesResolved{entries, err}}
}

// detailsFetchedMsg is the constructor for [MsgDetailsFetched]
func detailsFetchedMsg(details *tasks.Details, err error) Msg {
	return Msg{kind: MsgDetailsFetched, data: detailsFetched{details, err}}
}

// toggledMsg is the constructor for [MsgToggled]
func toggledMsg(kind membership.Kind, key models.Key, member bool, err error) Msg {
	return Msg{kind: MsgToggled, data: toggled{kind, key, member, err}}
}

// notificationMsg is the constructor for [MsgNotification]
func notificationMsg(n notify.Notification) Msg {
	return Msg{kind: MsgNotification, data: n}
}

// setChangedMsg is the constructor for [MsgSetChanged]
func setChangedMsg() Msg {
	return Msg{kind: MsgSetChanged}
}

// statusExpiredMsg is the constructor for [MsgStatusExpired]
func statusExpiredMsg(id string) Msg {
	return Msg{kind: MsgStatusExpired, data: id}
}
