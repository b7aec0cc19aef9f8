// Package command expands the placeholders of a command template for one
// filesystem event and hands the resulting argv to a Launcher.
//
// Recognised placeholders (an argument must equal the placeholder exactly):
//
//	$$  full path of the event
//	$@  directory part of the path
//	$#  base name of the path
//	$*  pid of the process that caused the event
//	$+  shared counter, incremented first
//	$-  shared counter, decremented first
//	$=  shared counter, unchanged
package command

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Counter is the process-wide counter behind $+, $- and $=. It wraps around
// like an unsigned 32-bit integer. The zero value is ready to use.
type Counter struct {
	n atomic.Uint32
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() uint32 { return c.n.Add(1) }

// Decrement subtracts one and returns the new value.
func (c *Counter) Decrement() uint32 { return c.n.Add(^uint32(0)) }

// Value returns the current value.
func (c *Counter) Value() uint32 { return c.n.Load() }

// Expand returns a copy of template with every placeholder argument replaced
// for an event on path caused by pid. template itself is left untouched so it
// can be reused for the next event.
func Expand(template []string, path string, pid int, counter *Counter) []string {
	argv := make([]string, len(template))
	for i, arg := range template {
		switch arg {
		case "$$":
			argv[i] = path
		case "$@":
			argv[i] = Dirname(path)
		case "$#":
			argv[i] = Basename(path)
		case "$*":
			argv[i] = strconv.Itoa(pid)
		case "$+":
			argv[i] = formatCount(counter.Increment())
		case "$-":
			argv[i] = formatCount(counter.Decrement())
		case "$=":
			argv[i] = formatCount(counter.Value())
		default:
			argv[i] = arg
		}
	}
	return argv
}

func formatCount(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}

// Basename returns the text after the final '/', or path itself when it has
// no '/'. A path ending in '/' yields the empty string.
func Basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Dirname returns the directory part of path. Trailing slashes are ignored,
// "." is returned when there is no '/', and a path made only of its root
// yields "/", or "//" when its second byte is also a slash.
//
// Unlike path.Dir it does not clean the result: "a//b" gives "a".
func Dirname(path string) string {
	c := strings.LastIndexByte(path, '/')
	if c < 0 {
		return "."
	}

	if c == len(path)-1 {
		// Skip the trailing run of slashes and find the previous separator.
		for c > 0 && path[c-1] == '/' {
			c--
		}
		c = strings.LastIndexByte(path[:c], '/')
		if c < 0 {
			// "name/" has no directory part; "///" is left to the root rule.
			if path[0] != '/' {
				return "."
			}
			c = 0
		}
	}

	for c > 0 && path[c-1] == '/' {
		c--
	}
	if c > 0 {
		return path[:c]
	}
	if len(path) > 1 && path[1] == '/' {
		return "//"
	}
	return "/"
}
