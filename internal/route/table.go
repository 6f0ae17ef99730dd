package route

import "sort"

// Table is an ordered, immutable sequence of Routes sorted by
// (priority desc, source local-first, route_id asc). NewTable constructs one
// from an unordered slice; Match performs the linear first-match scan.
type Table struct {
	routes []*Route
}

// NewTable sorts routes into table order and returns the immutable Table.
// Routes are assumed already Compile()d.
func NewTable(routes []*Route) *Table {
	cp := make([]*Route, len(routes))
	copy(cp, routes)
	sort.SliceStable(cp, func(i, j int) bool {
		a, b := cp[i], cp[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Source != b.Source {
			return a.Source == SourceLocal // local sorts first
		}
		return a.RouteID < b.RouteID
	})
	return &Table{routes: cp}
}

// Routes returns the ordered route slice. Callers must not mutate it.
func (t *Table) Routes() []*Route { return t.routes }

// Len reports the number of installed routes.
func (t *Table) Len() int { return len(t.routes) }

// Match scans the table in order and returns the first route whose pattern
// matches path and whose method set admits method. No backtracking: table
// order alone decides ties.
func (t *Table) Match(method, path string) (*Route, bool) {
	for _, r := range t.routes {
		if !r.AllowsMethod(method) {
			continue
		}
		if r.CompiledPattern().Match(path) {
			return r, true
		}
	}
	return nil, false
}
