// Package answer turns grounded facts into the prose reply for a question.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/llm"
)

// Completer is the language model behind the generator.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Config struct {
	// Completer may be nil, in which case every answer is rendered from the
	// built-in templates.
	Completer   Completer
	Temperature float32
	MaxTokens   int
	Now         func() time.Time
	Logger      *zap.Logger
}

type Generator struct {
	completer   Completer
	temperature float32
	maxTokens   int
	now         func() time.Time
	logger      *zap.Logger
}

func NewGenerator(cfg Config) *Generator {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Generator{
		completer:   cfg.Completer,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
}

// GenerateAnswer writes the reply. A failed model call falls back to the
// template reply; it only errors when ctx is done.
func (g *Generator) GenerateAnswer(ctx context.Context, question string, intent cortex.DetectedIntent, data *cortex.GroundedData) (*cortex.AnswerResult, error) {
	start := time.Now()
	if data == nil {
		data = &cortex.GroundedData{Intent: intent}
	}

	text := ""
	if g.completer != nil {
		generated, err := g.complete(ctx, question, data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			g.logger.Warn("LLM answer failed, using template",
				zap.String("intent", string(intent.Type)),
				zap.Error(err),
			)
		} else {
			text = generated
		}
	}
	if text == "" {
		text = renderTemplate(intent.Type, data)
	}

	return &cortex.AnswerResult{
		Answer:     text,
		Sources:    sourcesOf(data.Facts),
		Latency:    time.Since(start).Milliseconds(),
		Intent:     intent.Type,
		Confidence: intent.Confidence,
	}, nil
}

func (g *Generator) complete(ctx context.Context, question string, data *cortex.GroundedData) (string, error) {
	facts, err := json.MarshalIndent(data.Facts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode facts: %w", err)
	}

	systemPrompt := fmt.Sprintf(`You are Captain Cortex, the assistant of a short-term rental property management company. Answer using ONLY the data provided.

Key guidelines:
1. Use the specific records from the data; never invent records
2. Format money with its currency (Thai Baht ฿ when the currency is THB)
3. If no records were found, say so plainly and suggest what to check
4. Be specific about dates and time periods
5. Mention property names when relevant
6. Keep the answer short: two to four sentences

Current date: %s`, g.now().Format("2006-01-02"))

	userPrompt := fmt.Sprintf(`Question: %q

Intent: %s

Data:
%s`, question, data.Intent.Type, facts)

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// sourcesOf lists the connectors that returned data.
func sourcesOf(facts []cortex.ConnectorResult) []cortex.Source {
	sources := []cortex.Source{}
	for _, f := range facts {
		if !f.Success {
			continue
		}
		sources = append(sources, cortex.Source{
			Route:   f.Route,
			Params:  f.Params,
			Records: f.Records,
		})
	}
	return sources
}
