package notify

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Templates renders notifications into messages. Each kind has its own file
// defining a "subject" and a "body" template.
type Templates struct {
	byKind map[domain.NotificationKind]*template.Template
}

var kinds = []domain.NotificationKind{
	domain.NotifyVerificationCode,
	domain.NotifyEmailVerified,
	domain.NotifyPasswordResetCode,
	domain.NotifyPasswordResetSuccess,
	domain.NotifyPasswordChanged,
}

// LoadTemplates parses the embedded templates. Missing keys render as an
// error instead of "<no value>".
func LoadTemplates() (*Templates, error) {
	t := &Templates{byKind: make(map[domain.NotificationKind]*template.Template, len(kinds))}
	for _, kind := range kinds {
		name := "templates/" + string(kind) + ".tmpl"
		tmpl, err := template.New(string(kind)).Option("missingkey=error").ParseFS(templateFS, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t.byKind[kind] = tmpl
	}
	return t, nil
}

// Render builds the message for n.
func (t *Templates) Render(n domain.Notification) (Message, error) {
	tmpl, ok := t.byKind[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for %q", n.Kind)
	}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", n); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", n.Kind, err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", n); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", n.Kind, err)
	}

	return Message{
		To:      n.Recipient,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}
