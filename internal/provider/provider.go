// Package provider defines the content-generation collaborator. The actual
// generation backend is external glue and lives behind the Provider
// interface; this package owns only the chunking and rate-limit discipline
// the engine needs to call it safely.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "cadence/pkg/logx"
)

// Idea is one generated unit of content work.
type Idea struct {
	Description      string            `json:"description"`
	KeyPoints        []string          `json:"key_points,omitempty"`
	PlatformCaptions map[string]string `json:"platform_captions,omitempty"`
}

// Provider produces content ideas for a topic. Implementations may return
// fewer ideas than requested (partial results) and must honor ctx.
type Provider interface {
	Generate(ctx context.Context, topic string, count int) ([]Idea, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, topic string, count int) ([]Idea, error)

func (f Func) Generate(ctx context.Context, topic string, count int) ([]Idea, error) {
	return f(ctx, topic, count)
}

var ErrEmptyTopic = errors.New("generation topic is empty")

// ChunkerConfig bounds how the engine calls the backend.
type ChunkerConfig struct {
	// ChunkSize is the maximum ideas requested per backend call. Default 5.
	ChunkSize int
	// RatePerMinute throttles backend calls. Default 10.
	RatePerMinute int
}

func (c ChunkerConfig) withDefaults() ChunkerConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 5
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 10
	}
	return c
}

// Chunker wraps a Provider with chunked, rate-limited calls so a large
// replenishment request cannot burst through backend rate limits. It
// tolerates partial results: whatever was generated before an error is
// returned alongside it.
type Chunker struct {
	backend Provider
	cfg     ChunkerConfig
	limiter *rate.Limiter
	log     logx.Logger
}

func NewChunker(backend Provider, cfg ChunkerConfig, log logx.Logger) *Chunker {
	cfg = cfg.withDefaults()
	per := time.Minute / time.Duration(cfg.RatePerMinute)
	return &Chunker{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(per), 1),
		log:     log,
	}
}

func (c *Chunker) Generate(ctx context.Context, topic string, count int) ([]Idea, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if count <= 0 {
		return nil, nil
	}

	var out []Idea
	for len(out) < count {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, err
		}

		want := count - len(out)
		if want > c.cfg.ChunkSize {
			want = c.cfg.ChunkSize
		}

		ideas, err := c.backend.Generate(ctx, topic, want)
		out = append(out, ideas...)
		if err != nil {
			return out, fmt.Errorf("generate chunk: %w", err)
		}
		if len(ideas) == 0 {
			// Backend is out of material; partial result, not an error.
			if !c.log.IsZero() {
				c.log.Debug("provider returned no ideas", logx.String("topic", topic), logx.Int("have", len(out)), logx.Int("want", count))
			}
			break
		}
	}

	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}
