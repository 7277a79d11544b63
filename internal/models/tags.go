package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

type Tag string

const (
	TagGodPvE     Tag = "GodPvE"
	TagGodPvP     Tag = "GodPvP"
	TagPvE        Tag = "PvE"
	TagPvP        Tag = "PvP"
	TagTrash      Tag = "Trash"
	TagCurated    Tag = "Curated"
	TagMouse      Tag = "Mouse"
	TagController Tag = "Controller"
)

var knownTags = map[Tag]bool{
	TagGodPvE:     true,
	TagGodPvP:     true,
	TagPvE:        true,
	TagPvP:        true,
	TagTrash:      true,
	TagCurated:    true,
	TagMouse:      true,
	TagController: true,
}

func (t Tag) Valid() bool {
	return knownTags[t]
}

// TagSet is an unordered collection of tags without duplicates.
type TagSet map[Tag]struct{}

func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

func (s TagSet) Add(t Tag) {
	s[t] = struct{}{}
}

func (s TagSet) Remove(t Tag) {
	delete(s, t)
}

// Equal compares as sets; nil and empty sets are equal.
func (s TagSet) Equal(other TagSet) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

func (s TagSet) Clone() TagSet {
	if s == nil {
		return nil
	}
	out := make(TagSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// Sorted returns the tags in a stable order for rendering and storage.
func (s TagSet) Sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	set := make(TagSet, len(tags))
	for _, t := range tags {
		if !t.Valid() {
			return fmt.Errorf("unknown tag %q", t)
		}
		set[t] = struct{}{}
	}
	*s = set
	return nil
}
