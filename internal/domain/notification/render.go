package notification

import (
	"strings"

	"courier/internal/common"
)

// Render expands {key} placeholders in the message subject and body using
// the message data. Without data the templates are returned verbatim.
// A placeholder whose key is absent yields a *common.TemplateError.
func Render(msg Message) (RenderedMessage, error) {
	if len(msg.data) == 0 {
		return RenderedMessage{Subject: msg.subject, Body: msg.body}, nil
	}

	subject, err := substitute("subject", msg.subject, msg.data)
	if err != nil {
		return RenderedMessage{}, err
	}
	body, err := substitute("body", msg.body, msg.data)
	if err != nil {
		return RenderedMessage{}, err
	}

	return RenderedMessage{Subject: subject, Body: body}, nil
}

// substitute performs a single left-to-right pass. Substituted values are
// never rescanned. A '{' without a closing '}' is kept literally.
func substitute(field, tmpl string, data map[string]string) (string, error) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open+1:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}

		key := rest[open+1 : open+1+end]
		value, ok := data[key]
		if !ok {
			return "", common.NewTemplateError(field, key)
		}

		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[open+1+end+1:]
	}

	return b.String(), nil
}
