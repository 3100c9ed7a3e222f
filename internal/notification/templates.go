package notification

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"duka-be/internal/money"
	"duka-be/internal/order"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

type templateSource struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type templateFile struct {
	Statuses map[string]templateSource `yaml:"statuses"`
	Fallback templateSource            `yaml:"fallback"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Message is a rendered email.
type Message struct {
	Subject string
	Body    string
}

// TemplateData is what the templates see.
type TemplateData struct {
	OrderID        string
	Reference      string
	Status         string
	PreviousStatus string
	Total          string
}

// Templates picks a message per target status, falling back to a generic
// "status updated" message for statuses without an entry.
type Templates struct {
	byStatus map[order.Status]compiled
	fallback compiled
}

func DefaultTemplates() (*Templates, error) {
	return LoadTemplates(defaultTemplates)
}

func LoadTemplates(raw []byte) (*Templates, error) {
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if f.Fallback.Subject == "" || f.Fallback.Body == "" {
		return nil, fmt.Errorf("parse templates: fallback template is required")
	}

	t := &Templates{byStatus: make(map[order.Status]compiled, len(f.Statuses))}

	var err error
	if t.fallback, err = compile("fallback", f.Fallback); err != nil {
		return nil, err
	}
	for name, src := range f.Statuses {
		s := order.Status(name)
		if !s.Valid() {
			return nil, fmt.Errorf("parse templates: unknown status %q", name)
		}
		if t.byStatus[s], err = compile(name, src); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func compile(name string, src templateSource) (compiled, error) {
	subject, err := template.New(name + ".subject").Option("missingkey=error").Parse(src.Subject)
	if err != nil {
		return compiled{}, fmt.Errorf("template %s subject: %w", name, err)
	}
	body, err := template.New(name + ".body").Option("missingkey=error").Parse(src.Body)
	if err != nil {
		return compiled{}, fmt.Errorf("template %s body: %w", name, err)
	}
	return compiled{subject: subject, body: body}, nil
}

func (t *Templates) Render(ev order.StatusEvent) (Message, error) {
	c, ok := t.byStatus[ev.To]
	if !ok {
		c = t.fallback
	}

	data := TemplateData{
		OrderID:        ev.OrderID,
		Reference:      Reference(ev.OrderID),
		Status:         string(ev.To),
		PreviousStatus: string(ev.From),
		Total:          money.Round(ev.Total).StringFixed(2),
	}

	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}

	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}

// Reference is the short form of an order id shown to customers.
func Reference(orderID string) string {
	ref := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return "#" + ref
}
