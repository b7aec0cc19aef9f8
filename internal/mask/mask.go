// Package mask defines the fanotify event mask vocabulary understood by the
// facron configuration language and the table-driven lexer that turns a mask
// expression such as "FAN_MODIFY|FAN_EVENT_ON_CHILD,FAN_CLOSE_WRITE" into an
// ordered list of mask groups.
//
// The numeric values are the Linux fanotify constants from
// <linux/fanotify.h>. They are declared here rather than taken from
// golang.org/x/sys/unix so that the configuration front-end builds on every
// platform and includes the legacy composite masks (FAN_ALL_EVENTS and
// friends) that newer kernel headers no longer export.
package mask

import (
	"fmt"
	"strings"
)

// Mask is a fanotify event bitmask.
type Mask uint64

const (
	Access       Mask = 0x00000001
	Modify       Mask = 0x00000002
	CloseWrite   Mask = 0x00000008
	CloseNoWrite Mask = 0x00000010
	Open         Mask = 0x00000020
	QOverflow    Mask = 0x00004000
	OpenPerm     Mask = 0x00010000
	AccessPerm   Mask = 0x00020000
	OnDir        Mask = 0x40000000
	EventOnChild Mask = 0x08000000

	// Close matches a close of either a writable or a read-only file.
	Close = CloseWrite | CloseNoWrite

	AllEvents         = Access | Modify | Close | Open
	AllPermEvents     = OpenPerm | AccessPerm
	AllOutgoingEvents = AllEvents | AllPermEvents | QOverflow
)

// keyword binds a configuration keyword to its mask value. Every keyword is
// also accepted with the "FAN_" prefix.
type keyword struct {
	name  string
	value Mask
}

var keywords = []keyword{
	{"ACCESS", Access},
	{"MODIFY", Modify},
	{"CLOSE_WRITE", CloseWrite},
	{"CLOSE_NOWRITE", CloseNoWrite},
	{"OPEN", Open},
	{"OPEN_PERM", OpenPerm},
	{"ACCESS_PERM", AccessPerm},
	{"Q_OVERFLOW", QOverflow},
	{"ONDIR", OnDir},
	{"EVENT_ON_CHILD", EventOnChild},
	{"CLOSE", Close},
	{"ALL_EVENTS", AllEvents},
	{"ALL_PERM_EVENTS", AllPermEvents},
	{"ALL_OUTGOING_EVENTS", AllOutgoingEvents},
}

// bitNames lists the single-bit masks in the order String renders them.
var bitNames = []keyword{
	{"ACCESS", Access},
	{"MODIFY", Modify},
	{"CLOSE_WRITE", CloseWrite},
	{"CLOSE_NOWRITE", CloseNoWrite},
	{"OPEN", Open},
	{"Q_OVERFLOW", QOverflow},
	{"OPEN_PERM", OpenPerm},
	{"ACCESS_PERM", AccessPerm},
	{"EVENT_ON_CHILD", EventOnChild},
	{"ONDIR", OnDir},
}

// Has reports whether every bit of other is set in m.
func (m Mask) Has(other Mask) bool {
	return m&other == other
}

// String renders m as a "|"-joined list of keyword names. Bits without a
// name are appended as a hexadecimal remainder.
func (m Mask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	rest := m
	for _, b := range bitNames {
		if m&b.value != 0 {
			parts = append(parts, b.name)
			rest &^= b.value
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}

// Groups formats a list of mask groups the way they are written in a
// configuration file.
func Groups(groups []Mask) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = g.String()
	}
	return strings.Join(parts, ",")
}
