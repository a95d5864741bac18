package index

import (
	"fmt"
	"strings"
)

// Priority orders work within a queue. Lower values are more urgent.
type Priority int

const (
	// PriorityAlert is for user-visible edits that should be searchable immediately.
	PriorityAlert Priority = iota + 1
	// PriorityItem is for single-item updates.
	PriorityItem
	// PriorityGroup is for small groups of related updates.
	PriorityGroup
	// PriorityBulk is the default for bulk loads.
	PriorityBulk
	// PriorityBackground is for maintenance work (container deletes, reindex jobs).
	PriorityBackground
	// PriorityCrawl is used by the crawler.
	PriorityCrawl
	// PriorityIdle runs only when nothing else is queued.
	PriorityIdle
	// PriorityCommit is reserved for the commit-check control message.
	PriorityCommit
)

var priorityNames = map[Priority]string{
	PriorityAlert:      "alert",
	PriorityItem:       "item",
	PriorityGroup:      "group",
	PriorityBulk:       "bulk",
	PriorityBackground: "background",
	PriorityCrawl:      "crawl",
	PriorityIdle:       "idle",
	PriorityCommit:     "commit",
}

// String returns the lower-case priority name.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority parses a priority name. "commit" is rejected since callers cannot submit it.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityBulk, nil
	}
	for p, name := range priorityNames {
		if name == s && p != PriorityCommit {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// normalize maps unset or reserved priorities to PriorityBulk.
func (p Priority) normalize() Priority {
	if p < PriorityAlert || p >= PriorityCommit {
		return PriorityBulk
	}
	return p
}
