package conf

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrUnterminatedQuote is returned by ReadString when a quoted field has no
// closing delimiter on the same line.
var ErrUnterminatedQuote = errors.New("unterminated quoted string")

// Reader splits a configuration stream into lines and each line into fields.
// It keeps a cursor into the current line.
// Lines have no length limit.
type Reader struct {
	br     *bufio.Reader
	err    error
	line   string
	lineNo int
	pos    int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadLine advances to the next physical line. It returns false at end of
// input or on a read error; Err reports the latter.
func (r *Reader) ReadLine() bool {
	if r.err != nil {
		return false
	}
	line, err := r.br.ReadString('\n')
	if err != nil {
		r.err = err
		if line == "" || err != io.EOF {
			return false
		}
	}
	line = strings.TrimSuffix(line, "\n")
	r.line = strings.TrimSuffix(line, "\r")
	r.lineNo++
	r.pos = 0
	return true
}

// Err returns the first non-EOF error encountered while reading.
func (r *Reader) Err() error {
	if r.err == io.EOF {
		return nil
	}
	return r.err
}

// Line returns the current line without its terminator.
func (r *Reader) Line() string { return r.line }

// LineNo returns the 1-based number of the current line.
func (r *Reader) LineNo() int { return r.lineNo }

// Pos returns the cursor offset into the current line.
func (r *Reader) Pos() int { return r.pos }

// Rest returns the unread remainder of the current line.
func (r *Reader) Rest() string { return r.line[r.pos:] }

// Advance moves the cursor n bytes forward, clamped to the end of the line.
func (r *Reader) Advance(n int) {
	r.pos = min(r.pos+n, len(r.line))
}

// Blank reports whether the current line is empty or starts with whitespace.
// Such lines carry no entry.
func (r *Reader) Blank() bool {
	return len(r.line) == 0 || isSpace(r.line[0])
}

// EndOfLine reports whether the cursor reached the end of the line.
func (r *Reader) EndOfLine() bool {
	return r.pos >= len(r.line)
}

// SkipSpaces moves the cursor past any whitespace.
func (r *Reader) SkipSpaces() {
	for r.pos < len(r.line) && isSpace(r.line[r.pos]) {
		r.pos++
	}
}

// ReadPath reads a whitespace-delimited field. Quotes have no special
// meaning in the path field.
func (r *Reader) ReadPath() string {
	start := r.pos
	for r.pos < len(r.line) && !isSpace(r.line[r.pos]) {
		r.pos++
	}
	return r.line[start:r.pos]
}

// ReadString reads the next command field. A field starting with ' or " runs
// until the matching quote and may contain whitespace; any other field ends
// at the next whitespace.
func (r *Reader) ReadString() (string, error) {
	if r.pos >= len(r.line) {
		return "", nil
	}
	delim := r.line[r.pos]
	if delim != '\'' && delim != '"' {
		return r.ReadPath(), nil
	}
	end := strings.IndexByte(r.line[r.pos+1:], delim)
	if end < 0 {
		return "", ErrUnterminatedQuote
	}
	field := r.line[r.pos+1 : r.pos+1+end]
	r.pos += end + 2
	return field, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
