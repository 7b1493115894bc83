package core

import "strings"

// WalkFunc is called for every event in pre-order. Returning false skips the
// event's children.
type WalkFunc func(ev ScriptEvent, parentID string, depth int) bool

// Walk visits every event of m depth-first, parents before children.
func Walk(m Mission, fn WalkFunc) {
	walkEvents(m.Events, "", 0, fn)
}

func walkEvents(events []ScriptEvent, parentID string, depth int, fn WalkFunc) {
	for _, ev := range events {
		if fn(ev, parentID, depth) {
			walkEvents(ev.Children, ev.ID, depth+1, fn)
		}
	}
}

// Flatten returns every event of m in pre-order. Nested events appear both
// in their parent's Children and as entries of their own.
func Flatten(m Mission) []ScriptEvent {
	var out []ScriptEvent
	Walk(m, func(ev ScriptEvent, _ string, _ int) bool {
		out = append(out, ev)
		return true
	})
	return out
}

// Find returns the event with the given id anywhere in the tree.
func Find(m Mission, id string) (ScriptEvent, bool) {
	var (
		found ScriptEvent
		ok    bool
	)
	Walk(m, func(ev ScriptEvent, _ string, _ int) bool {
		if ok {
			return false
		}
		if ev.ID == id {
			found, ok = ev, true
			return false
		}
		return true
	})
	return found, ok
}

// Count returns the number of events in the tree.
func Count(m Mission) int {
	n := 0
	Walk(m, func(ScriptEvent, string, int) bool {
		n++
		return true
	})
	return n
}

// DuplicateIDs returns ids used by more than one event.
func DuplicateIDs(m Mission) []string {
	seen := make(map[string]int)
	var dups []string
	Walk(m, func(ev ScriptEvent, _ string, _ int) bool {
		seen[ev.ID]++
		if seen[ev.ID] == 2 {
			dups = append(dups, ev.ID)
		}
		return true
	})
	return dups
}

// Match is a search hit.
type Match struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	ParentID string `json:"parentId,omitempty"`
	Depth    int    `json:"depth"`
}

// Search runs a case-insensitive substring match over names, kinds and
// attribute values. An empty query matches everything.
func Search(m Mission, query string, limit int) []Match {
	query = strings.ToLower(query)
	results := make([]Match, 0)
	Walk(m, func(ev ScriptEvent, parentID string, depth int) bool {
		if limit > 0 && len(results) >= limit {
			return false
		}
		if query == "" || matches(ev, query) {
			results = append(results, Match{ID: ev.ID, Name: ev.Name, Kind: ev.Kind, ParentID: parentID, Depth: depth})
		}
		return true
	})
	return results
}

func matches(ev ScriptEvent, query string) bool {
	if strings.Contains(strings.ToLower(ev.Name), query) || strings.Contains(string(ev.Kind), query) {
		return true
	}
	for _, a := range ev.Attributes {
		if strings.Contains(strings.ToLower(a.Value), query) {
			return true
		}
	}
	return ev.Content != nil && strings.Contains(strings.ToLower(*ev.Content), query)
}
