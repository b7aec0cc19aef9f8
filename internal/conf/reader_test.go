package conf_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facron/facron/internal/conf"
)

func TestReader_Fields(t *testing.T) {
	rd := conf.NewReader(strings.NewReader(`/a/b  plain 'single q' "double q"x` + "\n"))
	require.True(t, rd.ReadLine())
	assert.Equal(t, 1, rd.LineNo())
	assert.False(t, rd.Blank())

	assert.Equal(t, "/a/b", rd.ReadPath())
	rd.SkipSpaces()
	assert.Equal(t, 6, rd.Pos())

	var fields []string
	for !rd.EndOfLine() {
		f, err := rd.ReadString()
		require.NoError(t, err)
		fields = append(fields, f)
		rd.SkipSpaces()
	}
	assert.Equal(t, []string{"plain", "single q", "double q", "x"}, fields)
	assert.False(t, rd.ReadLine())
	assert.NoError(t, rd.Err())
}

func TestReader_LastLineWithoutNewline(t *testing.T) {
	rd := conf.NewReader(strings.NewReader("one\r\ntwo"))
	require.True(t, rd.ReadLine())
	assert.Equal(t, "one", rd.Line())
	require.True(t, rd.ReadLine())
	assert.Equal(t, "two", rd.Line())
	assert.Equal(t, 2, rd.LineNo())
	assert.False(t, rd.ReadLine())
	assert.NoError(t, rd.Err())
}

func TestReader_PathIgnoresQuotes(t *testing.T) {
	rd := conf.NewReader(strings.NewReader(`'/quoted path' FAN_OPEN`))
	require.True(t, rd.ReadLine())
	assert.Equal(t, "'/quoted", rd.ReadPath())
	assert.Equal(t, " path' FAN_OPEN", rd.Rest())
}

func TestReader_UnterminatedQuote(t *testing.T) {
	rd := conf.NewReader(strings.NewReader(`"never closed`))
	require.True(t, rd.ReadLine())
	_, err := rd.ReadString()
	assert.ErrorIs(t, err, conf.ErrUnterminatedQuote)
}

func TestReader_EmptyQuotedField(t *testing.T) {
	rd := conf.NewReader(strings.NewReader(`'' next`))
	require.True(t, rd.ReadLine())
	f, err := rd.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", f)
	rd.SkipSpaces()
	f, err = rd.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "next", f)
}

func TestReader_BlankLines(t *testing.T) {
	rd := conf.NewReader(strings.NewReader("\n \tindented\nsolid\n"))
	var blank []bool
	for rd.ReadLine() {
		blank = append(blank, rd.Blank())
	}
	assert.Equal(t, []bool{true, true, false}, blank)
}

func TestReader_AdvanceClamps(t *testing.T) {
	rd := conf.NewReader(strings.NewReader("abc"))
	require.True(t, rd.ReadLine())
	rd.Advance(10)
	assert.True(t, rd.EndOfLine())
	assert.Equal(t, "", rd.Rest())
}
