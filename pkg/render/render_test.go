package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

func testData() Data {
	return Data{
		ContainerName: "alice",
		PrivateVolume: "alice_private",
		UserTag:       "dev",
		UserHash:      "abc123",
		AccessURL:     "https://sandbox.example.com/t/abc123",
		Created:       "2026-01-02T15:04:05Z",
	}
}

func TestRenderSubstitutesAllFields(t *testing.T) {
	t.Parallel()

	tmpl := `container: {{.ContainerName}}
volume: {{.PrivateVolume}}
tag: {{.UserTag}}
hash: {{.UserHash}}
url: {{.AccessURL}}
created: {{.Created}}
`
	out, err := Render(tmpl, testData())
	require.NoError(t, err)
	assert.Equal(t, `container: alice
volume: alice_private
tag: dev
hash: abc123
url: https://sandbox.example.com/t/abc123
created: 2026-01-02T15:04:05Z
`, out)
}

func TestRenderTagContainingPlaceholderIsInert(t *testing.T) {
	t.Parallel()

	// A user tag that looks like a template token must come through as
	// literal text, not get expanded a second time.
	data := testData()
	data.UserTag = "{{.UserHash}}"

	out, err := Render("tag={{.UserTag}} hash={{.UserHash}}", data)
	require.NoError(t, err)
	assert.Equal(t, "tag={{.UserHash}} hash=abc123", out)
}

func TestRenderUnknownFieldFails(t *testing.T) {
	t.Parallel()

	_, err := Render("{{.DoesNotExist}}", testData())
	require.Error(t, err)
}

func TestRenderBadTemplateFails(t *testing.T) {
	t.Parallel()

	_, err := Render("{{.ContainerName", testData())
	require.Error(t, err)
}

func TestNewData(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	r := tenant.Record{
		ContainerName: "bob",
		UserTag:       "qa",
		Created:       created,
		UserHash:      "h1",
	}

	d := NewData(r, "https://s.example.com/t/h1")
	assert.Equal(t, "bob", d.ContainerName)
	assert.Equal(t, "bob_private", d.PrivateVolume)
	assert.Equal(t, "qa", d.UserTag)
	assert.Equal(t, "h1", d.UserHash)
	assert.Equal(t, "https://s.example.com/t/h1", d.AccessURL)
	assert.Equal(t, "2026-03-04T05:06:07Z", d.Created)
}

func TestRenderFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "config.tmpl")
	outPath := filepath.Join(dir, "out", "runtime.yaml")
	require.NoError(t, os.WriteFile(tmplPath, []byte("name: {{.ContainerName}}\n"), 0o644))

	require.NoError(t, RenderFile(tmplPath, outPath, testData()))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "name: alice\n", string(data))
}

func TestRenderFileMissingTemplate(t *testing.T) {
	t.Parallel()

	err := RenderFile(filepath.Join(t.TempDir(), "absent.tmpl"), filepath.Join(t.TempDir(), "out"), testData())
	require.Error(t, err)
}
