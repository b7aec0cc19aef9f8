package mask

import (
	"errors"
	"fmt"
)

// Result is the outcome of one call to Next.
type Result int

const (
	// End terminates the mask field; the mask carries the last symbol.
	End Result = iota
	// Error means the input cannot extend any keyword.
	Error
	// Pipe ORs the mask into the current group.
	Pipe
	// Comma closes the current group and starts a new one.
	Comma
)

func (r Result) String() string {
	switch r {
	case End:
		return "END"
	case Error:
		return "ERROR"
	case Pipe:
		return "PIPE"
	case Comma:
		return "COMMA"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Input symbol classes of the automaton.
const (
	symUnderscore = 26 + iota
	symPipe
	symComma
	symSpace
	symOther
	numSymbols
)

type state int

// Sentinel states. Every non-negative state is a keyword prefix.
const (
	stBegin state = 0
	stError state = -1
	stPipe  state = -2
	stComma state = -3
	stEnd   state = -4
)

var (
	// transitions[s][sym] is the state reached from s on symbol sym.
	transitions [][numSymbols]state
	// accept[s] is the mask of the keyword ending in s, or 0.
	accept []Mask
)

func init() {
	newState()
	for _, kw := range keywords {
		insert(kw.name, kw.value)
		insert("FAN_"+kw.name, kw.value)
	}
	for s, m := range accept {
		if m == 0 {
			continue
		}
		transitions[s][symPipe] = stPipe
		transitions[s][symComma] = stComma
		transitions[s][symSpace] = stEnd
	}
}

func newState() state {
	var row [numSymbols]state
	for i := range row {
		row[i] = stError
	}
	transitions = append(transitions, row)
	accept = append(accept, 0)
	return state(len(transitions) - 1)
}

func insert(name string, value Mask) {
	s := stBegin
	for i := 0; i < len(name); i++ {
		sym := classify(name[i])
		next := transitions[s][sym]
		if next == stError {
			next = newState()
			transitions[s][sym] = next
		}
		s = next
	}
	accept[s] = value
}

func classify(c byte) int {
	switch {
	case c >= 'a' && c <= 'z':
		return int(c - 'a')
	case c >= 'A' && c <= 'Z':
		return int(c - 'A')
	case c == '_':
		return symUnderscore
	case c == '|':
		return symPipe
	case c == ',':
		return symComma
	case isSpace(c):
		return symSpace
	default:
		return symOther
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Next scans one symbol from the start of input. It returns the result, the
// number of bytes consumed and the mask of the recognised symbol.
//
// Pipe and Comma consume the separator. End does not consume the terminating
// whitespace. On Error the offset is the index of the offending character, or
// len(input) when the input ends in the middle of a keyword.
func Next(input string) (Result, int, Mask) {
	s := stBegin
	for i := 0; i < len(input); i++ {
		next := transitions[s][classify(input[i])]
		switch next {
		case stError:
			return Error, i, 0
		case stPipe:
			return Pipe, i + 1, accept[s]
		case stComma:
			return Comma, i + 1, accept[s]
		case stEnd:
			return End, i, accept[s]
		}
		s = next
	}
	if accept[s] != 0 {
		return End, len(input), accept[s]
	}
	return Error, len(input), 0
}

// ErrEmpty is returned by Parse when the expression yields no mask group.
var ErrEmpty = errors.New("mask: empty mask expression")

// SyntaxError reports the position of a character that cannot be part of a
// mask expression.
type SyntaxError struct {
	// Offset is the byte index of the offending character.
	Offset int
	// Char is the offending character; zero at end of input.
	Char byte
}

func (e *SyntaxError) Error() string {
	if e.Char == 0 {
		return fmt.Sprintf("mask: unexpected end of mask expression at offset %d", e.Offset)
	}
	return fmt.Sprintf("mask: unexpected character %q at offset %d", e.Char, e.Offset)
}

// Parse tokenizes a mask expression until the field terminator. It returns
// the mask groups, the number of bytes consumed and, on failure, a
// *SyntaxError or ErrEmpty.
func Parse(expr string) ([]Mask, int, error) {
	var (
		groups []Mask
		cur    Mask
		pos    int
	)
	for {
		res, n, m := Next(expr[pos:])
		switch res {
		case Error:
			off := pos + n
			var c byte
			if off < len(expr) {
				c = expr[off]
			}
			return nil, off, &SyntaxError{Offset: off, Char: c}
		case Pipe:
			cur |= m
		case Comma:
			groups = append(groups, cur|m)
			cur = 0
		case End:
			groups = append(groups, cur|m)
			pos += n
			if len(groups) == 0 || groups[0] == 0 {
				return nil, pos, ErrEmpty
			}
			return groups, pos, nil
		}
		pos += n
	}
}
