package conf

import (
	"github.com/facron/facron/internal/mask"
)

// Entry is one parsed configuration line: a watched path, its mask groups
// and the command to run when one of the groups matches.
type Entry struct {
	// Path is the watched file or directory, as written in the file.
	Path string
	// Groups holds one mask per comma-separated slot. Each group is an
	// independent trigger condition.
	Groups []mask.Mask
	// Command is the argv template. Placeholders such as "$$" are kept
	// verbatim and expanded per event.
	Command []string

	next *Entry
}

// Next returns the entry declared after e, or nil.
func (e *Entry) Next() *Entry {
	if e == nil {
		return nil
	}
	return e.next
}

// Entries is a singly linked list of entries in declaration order. The zero
// value is an empty list.
type Entries struct {
	head *Entry
	tail *Entry
	n    int
}

// Append links e at the end of the list.
func (l *Entries) Append(e *Entry) {
	e.next = nil
	if l.tail == nil {
		l.head = e
	} else {
		l.tail.next = e
	}
	l.tail = e
	l.n++
}

// First returns the first declared entry, or nil for an empty list. It is
// safe to call on a nil list.
func (l *Entries) First() *Entry {
	if l == nil {
		return nil
	}
	return l.head
}

// Len returns the number of entries. It is safe to call on a nil list.
func (l *Entries) Len() int {
	if l == nil {
		return 0
	}
	return l.n
}

// Slice copies the entries into a slice, in order.
func (l *Entries) Slice() []*Entry {
	out := make([]*Entry, 0, l.Len())
	for e := l.First(); e != nil; e = e.Next() {
		out = append(out, e)
	}
	return out
}
