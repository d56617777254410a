package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/flx/internal/membership"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/notify"
	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	BrowseView ViewState = iota
	DetailView
)

// Tab is one of the browse tabs.
type Tab int

const (
	TrendingTab Tab = iota
	ListTab
	LikedTab
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TrendingTab:
		return "Trending"
	case ListTab:
		return membership.Watchlist.Label
	case LikedTab:
		return membership.Likes.Label
	default:
		return ""
	}
}

// Options are the TUI's dependencies.
type Options struct {
	Engine    *tasks.CatalogEngine
	Watchlist *membership.Reconciler
	Likes     *membership.Reconciler
	Bus       *notify.Bus
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	view        ViewState
	tab         Tab
	engine      *tasks.CatalogEngine
	watchlist   *membership.Reconciler
	likes       *membership.Reconciler
	bus         *notify.Bus
	width       int
	height      int
	lists       [tabCount]list.Model
	rows        []tasks.Row
	titles      map[models.Key]models.Title
	details     *tasks.Details
	loading     bool
	status      *notify.Notification
	notes       chan notify.Notification
	changes     chan struct{}
	unsubscribe func()
	help        help.Model
	keys        keyMap
}

// NewModel creates a new TUI model and subscribes it to the notification bus.
// Call [Model.Close] once the program exits.
func NewModel(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:       ctx,
		view:      BrowseView,
		tab:       TrendingTab,
		engine:    opts.Engine,
		watchlist: opts.Watchlist,
		likes:     opts.Likes,
		bus:       opts.Bus,
		titles:    make(map[models.Key]models.Title),
		notes:     make(chan notify.Notification, 16),
		changes:   make(chan struct{}, 1),
		help:      help.New(),
		keys:      newKeyMap(),
	}

	for t := range tabCount {
		l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
		l.Title = t.String()
		l.SetShowHelp(false)
		l.SetShowStatusBar(false)
		m.lists[t] = l
	}

	var unsubs []func()
	if m.bus != nil {
		unsubs = append(unsubs, m.bus.Subscribe(func(n notify.Notification) {
			select {
			case m.notes <- n:
			default:
			}
		}))
	}
	for _, set := range []*membership.Reconciler{m.watchlist, m.likes} {
		if set == nil {
			continue
		}
		// Coalesced: one pending signal is enough to rebuild from the sets.
		unsubs = append(unsubs, set.OnChange(func() {
			select {
			case m.changes <- struct{}{}:
			default:
			}
		}))
	}
	m.unsubscribe = func() {
		for _, fn := range unsubs {
			fn()
		}
	}
	return m
}

// Close releases the notification and set subscriptions.
func (m *Model) Close() {
	m.unsubscribe()
}

// Init starts loading the trending rows and listening for notifications and set changes.
func (m *Model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.fetchRows(), m.waitForNotification(), m.waitForChange())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for i := range m.lists {
			m.lists[i].SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == DetailView {
			return m.handleDetailKeys(msg)
		}
		return m.handleBrowseKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgRowsFetched:
		data := msg.data.(rowsFetched)
		m.loading = false
		if data.err != nil {
			return m, m.setStatus(fmt.Sprintf("Failed to load titles: %v", data.err), notify.Error)
		}
		m.rows = data.rows
		for _, row := range data.rows {
			for _, t := range row.Titles {
				m.titles[t.Key()] = t
			}
		}
		return m, m.rebuild()

	case MsgTitlesResolved:
		data := msg.data.(titlesResolved)
		m.loading = false
		if data.err != nil {
			return m, m.setStatus(fmt.Sprintf("Failed to load titles: %v", data.err), notify.Error)
		}
		for _, entry := range data.entries {
			if entry.Title != nil {
				m.titles[entry.Item.Key()] = *entry.Title
			}
		}
		return m, m.rebuild()

	case MsgDetailsFetched:
		data := msg.data.(detailsFetched)
		m.loading = false
		if data.err != nil {
			m.view = BrowseView
			return m, m.setStatus(fmt.Sprintf("Failed to load details: %v", data.err), notify.Error)
		}
		m.details = data.details
		m.titles[data.details.Title.Key()] = data.details.Title
		m.view = DetailView
		return m, nil

	case MsgToggled:
		return m, m.handleToggled(msg.data.(toggled))

	case MsgNotification:
		n := msg.data.(notify.Notification)
		m.status = &n
		return m, tea.Batch(m.rebuild(), expireStatus(n), m.waitForNotification())

	case MsgSetChanged:
		return m, tea.Batch(m.rebuild(), m.waitForChange())

	case MsgStatusExpired:
		if m.status != nil && m.status.ID == msg.data.(string) {
			m.status = nil
		}
		return m, nil
	}
	return m, nil
}

// handleToggled reports the outcome of a toggle. Backend rejections are already rolled back
// and published by the reconciler, so only local failures are reported here.
func (m *Model) handleToggled(t toggled) tea.Cmd {
	if t.err != nil {
		if errors.Is(t.err, membership.ErrClosed) || errors.Is(t.err, models.ErrInvalidMediaType) ||
			errors.Is(t.err, context.Canceled) {
			return tea.Batch(m.rebuild(), m.setStatus(t.err.Error(), notify.Error))
		}
		return m.rebuild()
	}

	name := t.key.String()
	if title, ok := m.titles[t.key]; ok {
		name = title.Name
	}
	if m.bus != nil {
		if t.member {
			m.bus.Publish(fmt.Sprintf("Added %s to %s", name, t.kind.Label), notify.Success)
		} else {
			m.bus.Publish(fmt.Sprintf("Removed %s from %s", name, t.kind.Label), notify.Success)
		}
	}
	return m.rebuild()
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case DetailView:
		body = m.renderDetails()
	default:
		body = m.renderBrowse()
	}
	return fmt.Sprintf("%s\n%s", body, m.renderStatus())
}

func (m *Model) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	current := &m.lists[m.tab]
	if current.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.tab):
		step := Tab(1)
		if msg.String() == "shift+tab" {
			step = tabCount - 1
		}
		m.tab = (m.tab + step) % tabCount
		if set := m.setFor(m.tab); set != nil {
			return m, tea.Batch(m.rebuild(), m.resolve(set, false))
		}
		return m, nil

	case key.Matches(msg, m.keys.refresh):
		m.loading = true
		if set := m.setFor(m.tab); set != nil {
			return m, m.resolve(set, true)
		}
		return m, m.fetchRows()

	case key.Matches(msg, m.keys.enter):
		if title, ok := m.selected(); ok {
			m.loading = true
			return m, m.fetchDetails(title.Key())
		}
		return m, nil

	case key.Matches(msg, m.keys.watchlist):
		if title, ok := m.selected(); ok {
			return m, m.toggle(m.watchlist, title.Key())
		}
		return m, nil

	case key.Matches(msg, m.keys.like):
		if title, ok := m.selected(); ok {
			return m, m.toggle(m.likes, title.Key())
		}
		return m, nil
	}

	return m.updateList(msg)
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = BrowseView
		m.details = nil
		return m, nil
	case key.Matches(msg, m.keys.watchlist):
		return m, m.toggle(m.watchlist, m.details.Title.Key())
	case key.Matches(msg, m.keys.like):
		return m, m.toggle(m.likes, m.details.Title.Key())
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.lists[m.tab], cmd = m.lists[m.tab].Update(msg)
	return m, cmd
}

func (m *Model) setFor(t Tab) *membership.Reconciler {
	switch t {
	case ListTab:
		return m.watchlist
	case LikedTab:
		return m.likes
	default:
		return nil
	}
}

func (m *Model) selected() (models.Title, bool) {
	item, ok := m.lists[m.tab].SelectedItem().(titleItem)
	if !ok {
		return models.Title{}, false
	}
	return item.title, true
}

func (m *Model) setStatus(message string, level notify.Level) tea.Cmd {
	n := notify.Notification{
		ID:        shared.GenerateID(),
		Message:   message,
		Level:     level,
		Duration:  notify.DefaultDuration,
		CreatedAt: time.Now(),
	}
	m.status = &n
	return expireStatus(n)
}

func expireStatus(n notify.Notification) tea.Cmd {
	return tea.Tick(n.Duration, func(time.Time) tea.Msg {
		return statusExpiredMsg(n.ID)
	})
}

func (m *Model) item(t models.Title, row string) titleItem {
	return titleItem{
		title:  t,
		row:    row,
		inList: m.watchlist.IsMember(t.ID, t.MediaType),
		liked:  m.likes.IsMember(t.ID, t.MediaType),
	}
}

// rebuild refreshes the items of every tab from the rows, the sets and the known titles.
func (m *Model) rebuild() tea.Cmd {
	seen := make(map[models.Key]bool)
	var trending []list.Item
	for _, row := range m.rows {
		for _, t := range row.Titles {
			if seen[t.Key()] {
				continue
			}
			seen[t.Key()] = true
			trending = append(trending, m.item(t, row.Name))
		}
	}

	cmds := []tea.Cmd{m.lists[TrendingTab].SetItems(trending)}
	for _, t := range []Tab{ListTab, LikedTab} {
		items := m.setFor(t).Items()
		listItems := make([]list.Item, len(items))
		for i, item := range items {
			title, ok := m.titles[item.Key()]
			if !ok {
				title, _ = entryTitle(models.ListEntry{Item: item})
			}
			li := m.item(title, "")
			li.unknown = !ok
			listItems[i] = li
		}
		cmds = append(cmds, m.lists[t].SetItems(listItems))
	}
	return tea.Batch(cmds...)
}

func (m *Model) fetchRows() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.engine.Rows(m.ctx, "home", nil)
		return rowsFetchedMsg(rows, err)
	}
}

// resolve looks up the titles of set items that are not known yet. With resync the set is
// first reloaded from the backend when someone is signed in.
func (m *Model) resolve(set *membership.Reconciler, resync bool) tea.Cmd {
	known := make(map[models.Key]bool, len(m.titles))
	for k := range m.titles {
		known[k] = true
	}
	return func() tea.Msg {
		if resync && set.Identity() != "" {
			if err := set.Resync(m.ctx); err != nil {
				return titlesResolvedMsg(nil, err)
			}
		}
		var missing []models.MembershipItem
		for _, item := range set.Items() {
			if !known[item.Key()] {
				missing = append(missing, item)
			}
		}
		if len(missing) == 0 {
			return titlesResolvedMsg(nil, nil)
		}
		entries, err := m.engine.ResolveTitles(m.ctx, missing, nil)
		return titlesResolvedMsg(entries, err)
	}
}

func (m *Model) fetchDetails(k models.Key) tea.Cmd {
	return func() tea.Msg {
		details, err := m.engine.Details(m.ctx, k, nil)
		return detailsFetchedMsg(details, err)
	}
}

func (m *Model) toggle(set *membership.Reconciler, k models.Key) tea.Cmd {
	return func() tea.Msg {
		member, err := set.Toggle(m.ctx, k.MediaID, k.MediaType)
		return toggledMsg(set.Kind(), k, member, err)
	}
}

func (m *Model) waitForNotification() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-m.notes
		if !ok {
			return nil
		}
		return notificationMsg(n)
	}
}

// waitForChange yields once a set changes, including the optimistic step of a toggle that is
// still waiting on the backend.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return setChangedMsg()
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := range tabCount {
		label := t.String()
		if set := m.setFor(t); set != nil {
			label = fmt.Sprintf("%s (%d)", label, len(set.Items()))
		}
		if t == m.tab {
			tabs = append(tabs, styles.activeTab.Render(label))
		} else {
			tabs = append(tabs, styles.tab.Render(label))
		}
	}
	return strings.Join(tabs, " ")
}

func (m *Model) renderBrowse() string {
	var body string
	switch {
	case m.loading && len(m.lists[m.tab].Items()) == 0:
		body = styles.help.Render("Loading...")
	case len(m.lists[m.tab].Items()) == 0 && m.tab != TrendingTab:
		body = styles.help.Render(fmt.Sprintf("%s is empty. Press w or l on a title to add it.", m.tab))
	default:
		body = m.lists[m.tab].View()
	}

	helpView := m.help.ShortHelpView(m.keys.ShortHelp())
	return fmt.Sprintf("%s\n\n%s\n\n%s", m.renderTabs(), body, helpView)
}

func (m *Model) renderDetails() string {
	d := m.details
	if d == nil {
		return ""
	}

	var b strings.Builder
	heading := d.Title.Name
	if y := d.Title.Year(); y != "" {
		heading = fmt.Sprintf("%s (%s)", heading, y)
	}
	b.WriteString(styles.title.Render(heading))
	b.WriteString("\n")

	if d.Tagline != "" {
		b.WriteString(styles.help.Render(d.Tagline) + "\n\n")
	}

	var facts []string
	facts = append(facts, string(d.Title.MediaType))
	if d.Runtime > 0 {
		facts = append(facts, fmt.Sprintf("%d min", d.Runtime))
	}
	if d.Seasons > 0 {
		facts = append(facts, fmt.Sprintf("%d seasons, %d episodes", d.Seasons, d.Episodes))
	}
	if d.Title.VoteAverage > 0 {
		facts = append(facts, fmt.Sprintf("★ %.1f", d.Title.VoteAverage))
	}
	if d.Status != "" {
		facts = append(facts, d.Status)
	}
	b.WriteString(strings.Join(facts, " • ") + "\n")

	if len(d.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(d.Genres, ", "))
	}
	if len(d.Cast) > 0 {
		fmt.Fprintf(&b, "Cast: %s\n", strings.Join(d.Cast, ", "))
	}
	if d.Title.Overview != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Title.Overview)
	}
	if d.TrailerURL != "" {
		fmt.Fprintf(&b, "\nTrailer: %s\n", d.TrailerURL)
	}

	k := d.Title.Key()
	marks := []string{
		membershipMark(membership.Watchlist.Label, m.watchlist.IsMember(k.MediaID, k.MediaType)),
		membershipMark(membership.Likes.Label, m.likes.IsMember(k.MediaID, k.MediaType)),
	}
	fmt.Fprintf(&b, "\n%s\n\n", strings.Join(marks, "  "))

	helpKeys := []key.Binding{m.keys.watchlist, m.keys.like, m.keys.back, m.keys.quit}
	b.WriteString(m.help.ShortHelpView(helpKeys))
	return b.String()
}

func membershipMark(label string, member bool) string {
	if member {
		return styles.ok.Render("✓ " + label)
	}
	return styles.help.Render("· " + label)
}

func (m *Model) renderStatus() string {
	if m.status == nil {
		return ""
	}
	return styles.Level(m.status.Message, m.status.Level)
}
