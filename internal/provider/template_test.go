package provider

import (
	"context"
	"errors"
	"testing"
)

func TestTemplateGenerate(t *testing.T) {
	t.Parallel()

	tp := NewTemplate()
	ideas, err := tp.Generate(context.Background(), "sourdough baking", 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(ideas) != 9 {
		t.Fatalf("got %d ideas, want 9", len(ideas))
	}
	seen := map[string]bool{}
	for _, id := range ideas {
		if id.Description == "" {
			t.Fatal("empty description")
		}
		if seen[id.Description] {
			t.Fatalf("duplicate description %q", id.Description)
		}
		seen[id.Description] = true
		if len(id.KeyPoints) == 0 {
			t.Fatal("idea has no key points")
		}
	}
}

func TestTemplateRejectsEmptyTopic(t *testing.T) {
	t.Parallel()

	if _, err := NewTemplate().Generate(context.Background(), "  ", 1); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("err = %v, want ErrEmptyTopic", err)
	}
}
