// Package search filters den notes by substring query, share state, and tag.
// Everything runs in-process over a snapshot: a den's notes live on-device,
// so there is no external index to consult.
package search

import "strings"

// DefaultLimit caps result sets when the query does not say otherwise.
const DefaultLimit = 50

// Query describes one search over a den's notes.
type Query struct {
	Text       string
	SharedOnly bool
	Tag        string
	Limit      int
}

// Record is the minimal view of a note the matcher needs.
type Record struct {
	ID       string
	Content  string
	Tags     []string
	IsShared bool
}

// Match reports whether r satisfies q. The text match is a case-insensitive
// substring test over the note content.
func Match(r Record, q Query) bool {
	if q.SharedOnly && !r.IsShared {
		return false
	}
	if q.Tag != "" && !hasTag(r.Tags, q.Tag) {
		return false
	}
	if q.Text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Content), strings.ToLower(q.Text))
}

// Filter returns the ids of records matching q, in input order, capped at
// q.Limit (DefaultLimit when unset).
func Filter(records []Record, q Query) []string {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	ids := make([]string, 0, limit)
	for _, r := range records {
		if !Match(r, q) {
			continue
		}
		ids = append(ids, r.ID)
		if len(ids) == limit {
			break
		}
	}
	return ids
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
