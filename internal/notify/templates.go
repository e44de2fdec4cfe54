package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Rendered is a channel-agnostic rendering of one event: a short line for
// chat-style channels (Telegram) and a subject/body pair for email.
type Rendered struct {
	Subject string
	Text    string
}

// templateSet is the per-language copy for every EventType. Actual i18n
// content is out of scope; English is the only set registered and every
// other language falls back to it, per §4.9.
type templateSet struct {
	subject *template.Template
	body    *template.Template
}

var templatesByLanguage = map[string]map[EventType]templateSet{
	"en": {
		EventSuccess:      mustSet("{{.EntityName}} succeeded", "{{.EntityName}} completed successfully at {{.OccurredAt}}."),
		EventFailure:      mustSet("{{.EntityName}} failed", "{{.EntityName}} failed at {{.OccurredAt}}: {{.Data.error}}"),
		EventRecovery:     mustSet("{{.EntityName}} recovered", "{{.EntityName}} resumed normal operation at {{.OccurredAt}}."),
		EventMissedStart:  mustSet("{{.EntityName}} missed its start", "{{.EntityName}} did not start by its deadline ({{.OccurredAt}})."),
		EventMissedEnd:    mustSet("{{.EntityName}} missed its end", "{{.EntityName}} did not finish by its deadline ({{.OccurredAt}})."),
		EventSubscription: mustSet("{{.EntityName}} notification", "{{.EntityName}}: {{.Data.message}}"),
	},
}

func mustSet(subject, body string) templateSet {
	return templateSet{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// Render picks the template set for language, falling back to English when
// the language is unset or unregistered, and executes it against ev.
func Render(language string, ev Event) (Rendered, error) {
	set, ok := templatesByLanguage[language]
	if !ok {
		set = templatesByLanguage["en"]
	}
	ts, ok := set[ev.Type]
	if !ok {
		ts = templatesByLanguage["en"][ev.Type]
	}

	var subjectBuf, bodyBuf bytes.Buffer
	if err := ts.subject.Execute(&subjectBuf, ev); err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	if err := ts.body.Execute(&bodyBuf, ev); err != nil {
		return Rendered{}, fmt.Errorf("render body: %w", err)
	}
	return Rendered{Subject: subjectBuf.String(), Text: bodyBuf.String()}, nil
}
