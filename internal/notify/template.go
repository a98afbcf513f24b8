package notify

import (
	"bytes"
	"errors"
	"strings"
	"text/template"
)

// DefaultTemplate is the plain text body of a reviewer notification.
const DefaultTemplate = `[Reading {{.Outcome}}]
Meter: {{.MeterID}}{{ if .Zone }} ({{.Zone}}){{ end }}
Reading: {{.ReadingID}}
Date: {{.ReadingDate.UTC.Format "2006-01-02 15:04"}}
Value: {{.Value}}
Warnings: {{join .Warnings ", "}}
{{ if .ReviewURL }}Review: {{.ReviewURL}}
{{ end }}`

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("reading-notification").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to msg.
func (t *Template) Render(msg FlaggedReading) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, msg); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
