// Package playlist provides the rotating track list used by autoplay.
package playlist

// Playlist is an ordered list of track queries (search terms or URLs)
// with a rotation cursor. Queries are resolved lazily by the caller;
// the playlist itself never touches a track source.
type Playlist struct {
	Name    string
	queries []string
	next    int
}

// New creates a playlist over the given queries. Empty queries are dropped.
func New(name string, queries []string) *Playlist {
	kept := make([]string, 0, len(queries))
	for _, q := range queries {
		if q != "" {
			kept = append(kept, q)
		}
	}
	return &Playlist{Name: name, queries: kept}
}

// Len returns the number of queries in the playlist.
func (p *Playlist) Len() int {
	return len(p.queries)
}

// Queries returns a copy of all queries in rotation order.
func (p *Playlist) Queries() []string {
	out := make([]string, len(p.queries))
	copy(out, p.queries)
	return out
}

// Next returns the next query in round-robin order. The second return
// is false when the playlist is empty.
func (p *Playlist) Next() (string, bool) {
	if len(p.queries) == 0 {
		return "", false
	}
	q := p.queries[p.next]
	p.next = (p.next + 1) % len(p.queries)
	return q, true
}
