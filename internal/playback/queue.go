package playback

import (
	"iter"
	"strings"
)

// Transport is what the queue needs from the media session.
type Transport interface {
	Attach(locator string)
	Play()
}

// Queue is the ordered candidate list plus the now-playing cursor. The cursor
// is independent of any search filter. Queue is not safe for concurrent use.
type Queue struct {
	transport Transport
	entries   []VideoEntry
	cursor    int
	term      string
}

func NewQueue(t Transport) *Queue {
	return &Queue{transport: t, cursor: -1}
}

// Load replaces the sequence wholesale. Input order is trusted as-is. When
// the entry under the cursor survives the reload the cursor follows it and
// nothing is re-attached; otherwise index 0 is selected and attached without
// starting playback.
func (q *Queue) Load(entries []VideoEntry) {
	prev, hadCurrent := q.Current()

	q.entries = make([]VideoEntry, len(entries))
	copy(q.entries, entries)

	if len(q.entries) == 0 {
		q.cursor = -1
		return
	}

	if hadCurrent {
		for i, e := range q.entries {
			if e.ID == prev.ID {
				q.cursor = i
				return
			}
		}
	}

	q.cursor = 0
	q.transport.Attach(q.entries[0].SourceURL)
}

// SelectIndex loads entries[i] and starts playback. Out-of-range indices are
// ignored and reported as false.
func (q *Queue) SelectIndex(i int) bool {
	if i < 0 || i >= len(q.entries) {
		return false
	}
	q.cursor = i
	q.transport.Attach(q.entries[i].SourceURL)
	q.transport.Play()
	return true
}

// AdvanceOnEnd moves to the next entry after a natural end-of-media. The last
// entry does not wrap around.
func (q *Queue) AdvanceOnEnd() bool {
	return q.Next()
}

func (q *Queue) Next() bool {
	if q.cursor < 0 || q.cursor >= len(q.entries)-1 {
		return false
	}
	return q.SelectIndex(q.cursor + 1)
}

func (q *Queue) Previous() bool {
	if q.cursor <= 0 {
		return false
	}
	return q.SelectIndex(q.cursor - 1)
}

// Filter records term as the active search and returns the matching view.
// Stored order and the cursor are never touched.
func (q *Queue) Filter(term string) View {
	q.term = term
	return q.View()
}

// View returns the view for the active search term.
func (q *Queue) View() View {
	return View{entries: q.entries, term: strings.ToLower(q.term)}
}

func (q *Queue) Term() string {
	return q.term
}

func (q *Queue) Current() (VideoEntry, bool) {
	if q.cursor < 0 || q.cursor >= len(q.entries) {
		return VideoEntry{}, false
	}
	return q.entries[q.cursor], true
}

// CurrentIndex is -1 for an empty queue.
func (q *Queue) CurrentIndex() int {
	return q.cursor
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the stored sequence.
func (q *Queue) Entries() []VideoEntry {
	out := make([]VideoEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// View is a lazily evaluated, case-insensitive title filter over a queue
// snapshot. An empty term matches everything.
type View struct {
	entries []VideoEntry
	term    string
}

// All yields matching entries with their index in the stored sequence, which
// is the index to pass to SelectIndex.
func (v View) All() iter.Seq2[int, VideoEntry] {
	return func(yield func(int, VideoEntry) bool) {
		for i, e := range v.entries {
			if !v.matches(e) {
				continue
			}
			if !yield(i, e) {
				return
			}
		}
	}
}

func (v View) Len() int {
	n := 0
	for range v.All() {
		n++
	}
	return n
}

func (v View) Entries() []VideoEntry {
	out := make([]VideoEntry, 0, len(v.entries))
	for _, e := range v.All() {
		out = append(out, e)
	}
	return out
}

// Indices returns the stored-sequence index of every matching entry.
func (v View) Indices() []int {
	out := make([]int, 0, len(v.entries))
	for i := range v.All() {
		out = append(out, i)
	}
	return out
}

func (v View) matches(e VideoEntry) bool {
	if v.term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Title), v.term)
}
