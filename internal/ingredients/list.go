// Package ingredients is the editable candidate list shown on the confirm stage.
package ingredients

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownIngredient is returned for ids that are not in the list.
var ErrUnknownIngredient = errors.New("unknown ingredient")

// Ingredient is one candidate. Identity is the ID; names may repeat.
type Ingredient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is an ordered candidate list with at most one item in edit mode.
// It does no I/O and is not safe for concurrent use.
type List struct {
	items   []Ingredient
	editing string
}

// FromNames builds a list with one fresh candidate per name, names kept verbatim.
func FromNames(names []string) *List {
	l := &List{items: make([]Ingredient, 0, len(names))}
	for _, name := range names {
		l.items = append(l.items, Ingredient{ID: uuid.NewString(), Name: name})
	}
	return l
}

// Restore rebuilds a list from stored items and an open edit id.
func Restore(items []Ingredient, editing string) *List {
	l := &List{items: append([]Ingredient(nil), items...)}
	if editing != "" && l.index(editing) >= 0 {
		l.editing = editing
	}
	return l
}

// Add appends a trimmed, non-empty name. It reports whether the list changed.
func (l *List) Add(name string) (Ingredient, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Ingredient{}, false
	}
	item := Ingredient{ID: uuid.NewString(), Name: name}
	l.items = append(l.items, item)
	return item, true
}

// BeginEdit puts id in edit mode, replacing any open edit.
func (l *List) BeginEdit(id string) error {
	if l.index(id) < 0 {
		return ErrUnknownIngredient
	}
	l.editing = id
	return nil
}

// CommitEdit renames the item under edit to the trimmed value. An empty value
// discards the edit. Edit mode is closed either way. It reports whether a
// name changed.
func (l *List) CommitEdit(value string) bool {
	id := l.editing
	l.editing = ""
	if id == "" {
		return false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	i := l.index(id)
	if i < 0 || l.items[i].Name == value {
		return false
	}
	l.items[i].Name = value
	return true
}

// CancelEdit closes edit mode without changes.
func (l *List) CancelEdit() {
	l.editing = ""
}

// Rename is BeginEdit followed by CommitEdit.
func (l *List) Rename(id, value string) (bool, error) {
	if err := l.BeginEdit(id); err != nil {
		return false, err
	}
	return l.CommitEdit(value), nil
}

// Remove deletes id. Removing the item under edit closes the edit.
func (l *List) Remove(id string) error {
	i := l.index(id)
	if i < 0 {
		return ErrUnknownIngredient
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	if l.editing == id {
		l.editing = ""
	}
	return nil
}

// Names returns the current names in order.
func (l *List) Names() []string {
	out := make([]string, len(l.items))
	for i, item := range l.items {
		out[i] = item.Name
	}
	return out
}

// Items returns a copy of the current candidates.
func (l *List) Items() []Ingredient {
	return append([]Ingredient{}, l.items...)
}

// Editing returns the id in edit mode, or "".
func (l *List) Editing() string {
	return l.editing
}

// Len returns the number of candidates.
func (l *List) Len() int {
	return len(l.items)
}

func (l *List) index(id string) int {
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
