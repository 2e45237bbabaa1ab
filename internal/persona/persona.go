// Package persona renders the system prompt that gives auto-replies the
// owner's voice.
package persona

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// Version identifies the built-in persona text. Bump it whenever default.tmpl changes.
const Version = "2"

// VersionOverride is reported for prompts loaded from a file.
const VersionOverride = "file"

//go:embed default.tmpl
var defaultTemplate string

// ErrEmptyPrompt is returned when a template renders to blank text.
var ErrEmptyPrompt = errors.New("persona prompt is empty")

// Prompt is a rendered persona.
type Prompt struct {
	Version string
	Text    string
}

type templateData struct {
	OwnerName string
}

// Default renders the built-in persona for ownerName.
func Default(ownerName string) (Prompt, error) {
	text, err := render("default", defaultTemplate, ownerName)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Version: Version, Text: text}, nil
}

// Load renders the template at path, or the built-in persona when path is empty.
func Load(path, ownerName string) (Prompt, error) {
	if path == "" {
		return Default(ownerName)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to read persona file: %w", err)
	}
	text, err := render(path, string(raw), ownerName)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Version: VersionOverride, Text: text}, nil
}

func render(name, body, ownerName string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse persona template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{OwnerName: ownerName}); err != nil {
		return "", fmt.Errorf("failed to render persona template %s: %w", name, err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", ErrEmptyPrompt
	}
	return text, nil
}
