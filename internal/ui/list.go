package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/spotlist/internal/models"
)

var _ list.Item = unmatchedItem{}

// unmatchedItem wraps an unresolved [models.ResolvedEntry] to implement [list.Item].
type unmatchedItem struct {
	entry models.ResolvedEntry
}

func (i unmatchedItem) FilterValue() string { return i.entry.Query.Raw }
func (i unmatchedItem) Title() string {
	return fmt.Sprintf("%d. %s", i.entry.Query.Line, i.entry.Query.String())
}
func (i unmatchedItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.entry.Status, i.entry.Reason)
	if c := i.entry.Candidate; c != nil && c.Name != "" {
		desc = fmt.Sprintf("%s • closest: %s (%.2f)", desc, c.Name, i.entry.Confidence)
	}
	return desc
}

func unmatchedItems(entries []models.ResolvedEntry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = unmatchedItem{entry: e}
	}
	return items
}
