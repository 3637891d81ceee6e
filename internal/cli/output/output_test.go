package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	f, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableRender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tbl := NewTable("name", "tag")
	tbl.AddRow("alice", "dev")
	tbl.AddRow("bob", "qa")
	tbl.Render(&buf)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"name": "alice"}))
	assert.Contains(t, buf.String(), `"name": "alice"`)
}
