package conf

import (
	"errors"
	"fmt"
	"io"

	"github.com/facron/facron/internal/mask"
)

// Line-level parse failures. They are wrapped in a *LineError.
var (
	ErrUnreadablePath = errors.New("no such file or directory")
	ErrNoMask         = errors.New("no fanotify mask has been specified")
	ErrBadMask        = errors.New("mask not understood")
	ErrNoCommand      = errors.New("no command line specified")
)

// LineError describes a configuration line that was discarded. It is never
// fatal: the parser moves on to the next line.
type LineError struct {
	// Line is the 1-based line number.
	Line int
	// Column is the 1-based byte column where the problem was detected.
	Column int
	// Text is the offending line.
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseOption configures Parse.
type ParseOption func(*parser)

// WithPathCheck replaces the readability check applied to every watched
// path. check returns a non-nil error when the path must be rejected.
func WithPathCheck(check func(path string) error) ParseOption {
	return func(p *parser) { p.checkPath = check }
}

type parser struct {
	checkPath func(path string) error
}

// Parse reads a facron configuration from r. It returns every valid entry in
// declaration order. The returned error, when non-nil, joins one *LineError
// per discarded line (plus a read error if the stream failed); the entries
// are usable regardless.
func Parse(r io.Reader, opts ...ParseOption) (*Entries, error) {
	p := &parser{checkPath: checkReadable}
	for _, opt := range opts {
		opt(p)
	}

	rd := NewReader(r)
	entries := &Entries{}
	var errs []error
	for rd.ReadLine() {
		if rd.Blank() {
			continue
		}
		e, err := p.parseLine(rd)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries.Append(e)
	}
	if err := rd.Err(); err != nil {
		errs = append(errs, fmt.Errorf("conf: read: %w", err))
	}
	return entries, errors.Join(errs...)
}

// parseLine walks one line through the path, mask and command states.
func (p *parser) parseLine(rd *Reader) (*Entry, error) {
	path := rd.ReadPath()
	if err := p.checkPath(path); err != nil {
		return nil, lineError(rd, 0, fmt.Errorf("%w: %q", ErrUnreadablePath, path))
	}

	rd.SkipSpaces()
	if rd.EndOfLine() {
		return nil, lineError(rd, rd.Pos(), ErrNoMask)
	}

	start := rd.Pos()
	groups, n, err := mask.Parse(rd.Rest())
	if err != nil {
		var se *mask.SyntaxError
		switch {
		case errors.As(err, &se) && se.Char != 0:
			return nil, lineError(rd, start+se.Offset,
				fmt.Errorf("%w: unexpected character %q", ErrBadMask, se.Char))
		case errors.As(err, &se):
			return nil, lineError(rd, start+se.Offset,
				fmt.Errorf("%w: unexpected end of mask", ErrBadMask))
		default:
			return nil, lineError(rd, start, ErrNoMask)
		}
	}
	rd.Advance(n)

	var command []string
	rd.SkipSpaces()
	for !rd.EndOfLine() {
		fieldStart := rd.Pos()
		field, err := rd.ReadString()
		if err != nil {
			return nil, lineError(rd, fieldStart, err)
		}
		command = append(command, field)
		rd.SkipSpaces()
	}
	if len(command) == 0 {
		return nil, lineError(rd, rd.Pos(), fmt.Errorf("%w for %q", ErrNoCommand, path))
	}

	return &Entry{Path: path, Groups: groups, Command: command}, nil
}

func lineError(rd *Reader, offset int, err error) *LineError {
	return &LineError{Line: rd.LineNo(), Column: offset + 1, Text: rd.Line(), Err: err}
}
