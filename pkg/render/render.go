// Package render produces the per-tenant runtime configuration from a
// template. Rendering uses text/template with strict missing-key handling
// rather than literal token substitution, so tenant-supplied values that
// happen to contain a placeholder are inert data, never re-expanded.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

// Data is the value set available to runtime configuration templates.
type Data struct {
	ContainerName string
	PrivateVolume string
	UserTag       string
	UserHash      string
	AccessURL     string
	Created       string
}

// NewData builds template data from a tenant record.
func NewData(r tenant.Record, accessURL string) Data {
	return Data{
		ContainerName: r.ContainerName,
		PrivateVolume: tenant.PrivateVolumeName(r.ContainerName),
		UserTag:       r.UserTag,
		UserHash:      r.UserHash,
		AccessURL:     accessURL,
		Created:       r.Created.Format(time.RFC3339),
	}
}

// Render executes templateText against data. Unknown template fields are an
// error so a typo in the template fails the provisioning run instead of
// producing a broken runtime config.
func Render(templateText string, data Data) (string, error) {
	tmpl, err := template.New("runtime-config").Option("missingkey=error").Parse(templateText)
	if err != nil {
		return "", fmt.Errorf("invalid runtime config template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render runtime config: %w", err)
	}
	return buf.String(), nil
}

// RenderFile reads the template from templatePath, renders it, and writes
// the result to outputPath.
func RenderFile(templatePath, outputPath string, data Data) error {
	text, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}

	rendered, err := Render(string(text), data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", outputPath, err)
	}
	if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write rendered config %s: %w", outputPath, err)
	}
	return nil
}
