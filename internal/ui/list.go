package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/flx/internal/models"
)

var _ list.Item = titleItem{}

// titleItem wraps [models.Title] with its membership badges to implement [list.Item].
type titleItem struct {
	title   models.Title
	row     string
	inList  bool
	liked   bool
	unknown bool
}

func (i titleItem) FilterValue() string { return i.title.Name }

func (i titleItem) Title() string {
	var badges []string
	if i.inList {
		badges = append(badges, "+")
	}
	if i.liked {
		badges = append(badges, "♥")
	}
	if len(badges) == 0 {
		return i.title.Name
	}
	return fmt.Sprintf("%s %s", i.title.Name, strings.Join(badges, " "))
}

func (i titleItem) Description() string {
	if i.unknown {
		return fmt.Sprintf("%s • title unavailable", i.title.MediaType)
	}
	parts := make([]string, 0, 4)
	if i.row != "" {
		parts = append(parts, i.row)
	}
	if y := i.title.Year(); y != "" {
		parts = append(parts, y)
	}
	parts = append(parts, string(i.title.MediaType))
	if i.title.VoteAverage > 0 {
		parts = append(parts, fmt.Sprintf("★ %.1f", i.title.VoteAverage))
	}
	return strings.Join(parts, " • ")
}

// entryTitle returns the resolved title of a list entry, or a placeholder named after its key.
func entryTitle(entry models.ListEntry) (models.Title, bool) {
	if entry.Title != nil {
		return *entry.Title, true
	}
	return models.Title{
		ID:        entry.Item.MediaID,
		MediaType: entry.Item.MediaType,
		Name:      entry.Item.Key().String(),
	}, false
}
