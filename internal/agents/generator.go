package agents

import (
	"context"
	"encoding/json"
	"strings"
)

// Generator produces one strict-JSON object per call. It owns parse
// salvage, self-correction and retries; callers only see the final object
// or a typed *GeneratorError.
type Generator struct {
	client *Client
	policy RetryPolicy
}

// NewGenerator wraps a chat client with the default retry policy.
func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, policy: DefaultRetryPolicy()}
}

// NewGeneratorWithPolicy wraps a chat client with an explicit retry policy.
func NewGeneratorWithPolicy(client *Client, policy RetryPolicy) *Generator {
	return &Generator{client: client, policy: policy}
}

// ChatJSON asks for a single JSON object and parses it. On a parse failure
// it first salvages by truncating to the outermost object, then issues one
// self-correction round trip asking the model to restate its answer as bare
// JSON. Transport failures are retried under the generator's policy.
func (g *Generator) ChatJSON(ctx context.Context, system string, messages []Message, temperature float64, maxTokens int) (map[string]any, error) {
	msgs := make([]Message, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, messages...)

	var result map[string]any
	err := g.policy.Do(ctx, func() error {
		var attemptErr error
		result, attemptErr = g.attempt(ctx, msgs, temperature, maxTokens)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *Generator) attempt(ctx context.Context, msgs []Message, temperature float64, maxTokens int) (map[string]any, error) {
	resp, err := g.client.CreateCompletion(ctx, &CompletionRequest{
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if obj, ok := parseObject(content); ok {
		return obj, nil
	}

	// One self-correction round trip: hand the reply back and ask for bare
	// JSON at temperature zero.
	fixMsgs := append(append([]Message(nil), msgs...),
		Message{Role: "assistant", Content: content},
		Message{Role: "user", Content: "That was not strict JSON. Output exactly one JSON object, with no explanation and no code fences."},
	)
	resp2, err := g.client.CreateCompletion(ctx, &CompletionRequest{
		Messages:    fixMsgs,
		Temperature: 0.0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	fixed := strings.TrimSpace(resp2.Choices[0].Message.Content)
	if obj, ok := parseObject(fixed); ok {
		return obj, nil
	}
	return nil, &GeneratorError{Op: "parse", Err: errMalformed(fixed), Retryable: true}
}

type malformedError string

func (e malformedError) Error() string { return "persistent malformed JSON output: " + string(e) }

func errMalformed(content string) error {
	if len(content) > 120 {
		content = content[:120] + "..."
	}
	return malformedError(content)
}

// parseObject attempts a strict parse, then salvage by truncation: keep
// only the outermost {...} span (dropping code fences and trailing chatter,
// the two common failure shapes).
func parseObject(content string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj, true
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &obj); err == nil {
		return obj, true
	}
	return nil, false
}
