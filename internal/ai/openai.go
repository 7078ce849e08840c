package ai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

type openAIBackend struct {
	client *openai.Client
	model  string
}

func newOpenAI(model, key string) (*openAIBackend, error) {
	if key == "" {
		return nil, errors.New("openai: api key required (ai.api_key or OPENAI_API_KEY)")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &openAIBackend{client: openai.NewClient(key), model: model}, nil
}

func (o *openAIBackend) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		// JSON mode keeps the reply a bare object
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
