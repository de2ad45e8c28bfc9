package contacts

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// Template is a message body. A literal template renders Content unchanged.
type Template struct {
	tmpl    *template.Template
	Content string // raw text, part of the ledger hash
}

// Literal wraps text that is sent exactly as given.
func Literal(content string) *Template {
	return &Template{Content: content}
}

func ParseTemplate(content string) (*Template, error) {
	tmpl, err := template.New("message").Option("missingkey=zero").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Template{tmpl: tmpl, Content: content}, nil
}

func LoadTemplate(filePath string) (*Template, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return ParseTemplate(string(content))
}

func (t *Template) Render(r Recipient) (string, error) {
	if t.tmpl == nil {
		return t.Content, nil
	}

	data := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		data[k] = v
	}
	data["Username"] = r.Username

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
