package sinkcore

// Group is a set of sinks sharing one filter-graph tap because their output
// formats and gains are mutually compatible (spec.md §3 "Sink map"). The
// first sink added to a group is its example, whose format/gain define the
// tap; Example changes if that sink is removed while others remain.
type Group struct {
	Example *Sink
	Members []*Sink
}

// Map groups every attached sink into compatible groups. It is rebuilt
// (not incrementally patched) whenever a sink attaches, detaches, or
// changes gain/format — matching the source's "changing a sink's gain or
// format requires re-grouping" invariant (spec.md §3).
type Map struct {
	Groups []*Group
}

// Compatible reports whether a and b may share a filter-graph tap: equal
// gain, equal buffer_sample_count or one of them zero, and (when resample
// is enabled for both) equal audio format.
func Compatible(a, b *Sink) bool {
	if a.Gain != b.Gain {
		return false
	}
	if a.BufferSampleCount != 0 && b.BufferSampleCount != 0 && a.BufferSampleCount != b.BufferSampleCount {
		return false
	}
	if !a.DisableResample && !b.DisableResample {
		return a.Format == b.Format
	}
	return a.DisableResample == b.DisableResample
}

// Build regroups sinks into the fewest groups such that every pair within a
// group is Compatible with the group's example. Greedy first-fit is
// sufficient here: the filter graph only needs *a* valid grouping, not a
// minimum one, and sinks attach one at a time in practice.
func Build(sinks []*Sink) *Map {
	m := &Map{}
	for _, s := range sinks {
		placed := false
		for _, g := range m.Groups {
			if Compatible(g.Example, s) {
				g.Members = append(g.Members, s)
				placed = true
				break
			}
		}
		if !placed {
			m.Groups = append(m.Groups, &Group{Example: s, Members: []*Sink{s}})
		}
	}
	return m
}

// GroupOf returns the group s belongs to in m, or nil if s is not present.
func (m *Map) GroupOf(s *Sink) *Group {
	for _, g := range m.Groups {
		for _, member := range g.Members {
			if member == s {
				return g
			}
		}
	}
	return nil
}
