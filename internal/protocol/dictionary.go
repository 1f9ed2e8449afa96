package protocol

import "sort"

// RouteDictionary maps routes to 2-byte codes and back. It is built once from
// handshake data and never mutated; a new handshake replaces it wholesale.
type RouteDictionary struct {
	codes   map[string]uint16
	routes  map[uint16]string
	dropped []string
}

// NewRouteDictionary builds both directions of the table. Entries whose code
// does not fit in two bytes are left out so that compression never overflows;
// they are reported by Dropped.
func NewRouteDictionary(dict map[string]int) *RouteDictionary {
	d := &RouteDictionary{
		codes:  make(map[string]uint16, len(dict)),
		routes: make(map[uint16]string, len(dict)),
	}
	for route, code := range dict {
		if code < 0 || code > MaxRouteCode || route == "" {
			d.dropped = append(d.dropped, route)
			continue
		}
		d.codes[route] = uint16(code)
		d.routes[uint16(code)] = route
	}
	sort.Strings(d.dropped)
	return d
}

// Code returns the compression code for route.
func (d *RouteDictionary) Code(route string) (uint16, bool) {
	if d == nil {
		return 0, false
	}
	code, ok := d.codes[route]
	return code, ok
}

// Route returns the route registered under code.
func (d *RouteDictionary) Route(code uint16) (string, bool) {
	if d == nil {
		return "", false
	}
	route, ok := d.routes[code]
	return route, ok
}

// Len returns the number of usable entries.
func (d *RouteDictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.codes)
}

// Routes returns a copy of the route → code table.
func (d *RouteDictionary) Routes() map[string]uint16 {
	out := make(map[string]uint16, d.Len())
	if d == nil {
		return out
	}
	for route, code := range d.codes {
		out[route] = code
	}
	return out
}

// Dropped lists the routes rejected at construction, sorted.
func (d *RouteDictionary) Dropped() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.dropped...)
}
