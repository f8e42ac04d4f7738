package openai

import (
    "context"
    "errors"
    "fmt"
    "strings"

    openai "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
)

type Client struct {
    key        string
    model      string
    embedModel string
    cli        openai.Client
    log        zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    model := cfg.OpenAIModel
    if strings.TrimSpace(model) == "" { model = "gpt-4-turbo-preview" }
    embedModel := cfg.OpenAIEmbedModel
    if strings.TrimSpace(embedModel) == "" { embedModel = "text-embedding-3-small" }
    cli := openai.NewClient(
        option.WithAPIKey(cfg.OpenAIKey),
        option.WithRequestTimeout(cfg.OpenAITimeout),
    )
    return &Client{key: cfg.OpenAIKey, model: model, embedModel: embedModel, cli: cli, log: log}
}

// Complete issues one chat completion. No retry: a failed call is terminal
// for the operation that needed it.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    params := openai.ChatCompletionNewParams{
        Model: shared.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage(system),
            openai.UserMessage(user),
        },
    }
    resp, err := c.cli.Chat.Completions.New(ctx, params)
    if err != nil { return "", fmt.Errorf("openai chat: %w", err) }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    c.log.Debug().Str("model", c.model).
        Int64("prompt_tokens", resp.Usage.PromptTokens).
        Int64("completion_tokens", resp.Usage.CompletionTokens).
        Msg("openai chat completed")
    return resp.Choices[0].Message.Content, nil
}

// Embed maps texts to fixed-size vectors in a single batch call, preserving
// input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
    if strings.TrimSpace(c.key) == "" { return nil, errors.New("openai: missing key") }
    if len(texts) == 0 { return nil, nil }
    params := openai.EmbeddingNewParams{
        Model: openai.EmbeddingModel(c.embedModel),
        Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
    }
    resp, err := c.cli.Embeddings.New(ctx, params)
    if err != nil { return nil, fmt.Errorf("openai embeddings: %w", err) }
    if len(resp.Data) != len(texts) {
        return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
    }
    out := make([][]float64, len(texts))
    for _, d := range resp.Data {
        if d.Index < 0 || int(d.Index) >= len(out) {
            return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
        }
        out[d.Index] = d.Embedding
    }
    return out, nil
}
