package sim

import (
	"fmt"
	"sort"
	"strings"
)

// NoHistoryMarker is the explicit placeholder used when an agent has no
// prior ticks to observe.
const NoHistoryMarker = "(no prior history)"

const defaultLocation = "Start"

// GroupByLocation partitions each agent's latest output by its resulting
// location. Iteration over the result should use SortedLocations for a
// deterministic order.
func GroupByLocation(h History) map[string][]*TickOutput {
	groups := make(map[string][]*TickOutput)
	for _, items := range h {
		if len(items) == 0 {
			continue
		}
		last := items[len(items)-1]
		loc := last.Location
		if loc == "" {
			loc = defaultLocation
		}
		groups[loc] = append(groups[loc], last)
	}
	for _, members := range groups {
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].AgentID < members[j].AgentID
		})
	}
	return groups
}

// SortedLocations returns group keys in lexical order.
func SortedLocations(groups map[string][]*TickOutput) []string {
	locs := make([]string, 0, len(groups))
	for loc := range groups {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	return locs
}

// LocalContext renders the public portion (action, speech, location — never
// thoughts or memory) of every agent whose last output sits at the focus
// location. Tick 0 and empty views degrade to the no-history marker.
func LocalContext(tick int, h History, focusLocation string) string {
	if tick == 0 || len(h) == 0 {
		return NoHistoryMarker
	}

	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var lines []string
	for _, id := range ids {
		last := h.Last(id)
		if last == nil || last.Location != focusLocation {
			continue
		}
		lines = append(lines, fmt.Sprintf("[tick %d] %s: action=%q, speech=%q, location=%q",
			last.Tick, last.AgentID, last.Action, last.Speech, last.Location))
	}
	if len(lines) == 0 {
		return NoHistoryMarker
	}
	return strings.Join(lines, "\n")
}
