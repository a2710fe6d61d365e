package backend

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const defaultMaxTokens = 8192

// AnthropicBackend streams agent output from the Anthropic Messages API.
type AnthropicBackend struct {
	api   *anthropic.Client
	model anthropic.Model
	log   *zap.Logger
}

// NewAnthropicBackend creates a backend with the given API key and model.
func NewAnthropicBackend(apiKey, model string, log *zap.Logger) *AnthropicBackend {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicBackend{
		api:   &client,
		model: anthropic.Model(model),
		log:   log,
	}
}

// Stream sends the prompt and relays text deltas as stdout events. The full
// accumulated text is emitted as a single result event before done.
func (b *AnthropicBackend) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := b.api.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 64)
	go func() {
		defer close(ch)

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				b.log.Warn("accumulate stream event", zap.Error(err))
			}

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !send(Event{Type: EventStdout, Content: deltaVariant.Text}) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			b.log.Warn("agent stream failed", zap.Error(err))
			if !send(Event{Type: EventError, Content: err.Error()}) {
				return
			}
			send(Event{Type: EventDone})
			return
		}

		var full string
		for _, block := range message.Content {
			if block.Type == "text" {
				full += block.Text
			}
		}
		if !send(Event{Type: EventResult, Content: full}) {
			return
		}
		send(Event{Type: EventDone})
	}()

	return ch, nil
}
