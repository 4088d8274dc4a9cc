package provider

import (
	"context"
	"fmt"
	"strings"
)

// Template is a deterministic offline backend: it expands a topic into
// ideas using a fixed set of angle templates. It serves deployments that
// run without an external generation API and doubles as the default
// backend in development.
type Template struct {
	angles []string
}

func NewTemplate() *Template {
	return &Template{
		angles: []string{
			"Beginner mistakes with %s and how to avoid them",
			"A 60-second checklist for %s",
			"What nobody tells you about %s",
			"Before and after: %s done right",
			"The 3 tools that make %s easier",
			"Myths about %s, debunked",
			"One week of %s: what actually changed",
		},
	}
}

func (t *Template) Generate(_ context.Context, topic string, count int) ([]Idea, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if count <= 0 {
		return nil, nil
	}
	out := make([]Idea, 0, count)
	for i := 0; i < count; i++ {
		angle := t.angles[i%len(t.angles)]
		desc := fmt.Sprintf(angle, topic)
		if i >= len(t.angles) {
			// Repeat rounds get a variant suffix so descriptions stay unique.
			desc = fmt.Sprintf("%s (part %d)", desc, i/len(t.angles)+1)
		}
		out = append(out, Idea{
			Description: desc,
			KeyPoints:   []string{"hook in the first 3 seconds", "one concrete example", "call to action"},
			PlatformCaptions: map[string]string{
				"short": desc,
				"long":  fmt.Sprintf("%s — today we cover %s.", desc, topic),
			},
		})
	}
	return out, nil
}
