// Package gemini adapts the Google Gemini API to the gateway contracts:
// intent classification, grounded text generation, streamed audio generation
// and text embedding.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/terratale/terratale/core/gateway"
)

const (
	defaultTextModel       = "gemini-2.5-flash"
	defaultClassifierModel = "gemini-2.5-flash"
	defaultAudioModel      = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultEmbeddingModel  = "embedding-001"
)

const defaultTextPersona = `You are Papito, a park ranger and guide in the San San Pond Sak wetlands. Your tone is knowledgeable, friendly, and helpful. Your answer MUST be based ONLY on the provided context. Crucially, 'San San Pond Sak' is the name of a specific wetland in Panama; it is not 'Samsung'. Do not comment on misspellings or phonetic similarities. Directly answer the question using the information associated with the term in the context.`

const defaultAudioPersona = `You are Mateo, a playful manatee. Your tone is fun, gentle, and a little bit magical. Keep your answers very short (1-2 sentences). Base your answer ONLY on the provided context.`

const classifierPersona = `You classify a single visitor query for a nature guide. Reply with intent "description" when the visitor asks to see, show or find images of something. Reply with intent "question" for everything else.`

// Client implements the model gateway against the Gemini API.
type Client struct {
	client *genai.Client

	textModel       string
	classifierModel string
	audioModel      string
	embeddingModel  string

	textPersona  string
	audioPersona string
}

var _ gateway.ModelGateway = (*Client)(nil)

type Option func(*Client)

func WithTextModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.textModel = model
		}
	}
}

func WithClassifierModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.classifierModel = model
		}
	}
}

func WithAudioModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.audioModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithPersonas overrides the written and spoken answer personas. Empty
// strings keep the defaults.
func WithPersonas(textPersona, audioPersona string) Option {
	return func(c *Client) {
		if textPersona != "" {
			c.textPersona = textPersona
		}
		if audioPersona != "" {
			c.audioPersona = audioPersona
		}
	}
}

func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	apiClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	client := &Client{
		client: apiClient,

		textModel:       defaultTextModel,
		classifierModel: defaultClassifierModel,
		audioModel:      defaultAudioModel,
		embeddingModel:  defaultEmbeddingModel,

		textPersona:  defaultTextPersona,
		audioPersona: defaultAudioPersona,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// intentClassification is the structured output schema for the classifier
// call.
type intentClassification struct {
	Intent string `json:"intent" jsonschema:"enum=question,enum=description"`
}

func (c *Client) ClassifyIntent(ctx context.Context, query string) (gateway.Intent, error) {
	ctx, span := tracer.Start(ctx, "classify intent")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.classifierModel))

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: classifierPersona}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    classificationSchema(),
	}

	response, err := c.client.Models.GenerateContent(ctx, c.classifierModel, genai.Text(query), config)
	if err != nil {
		err = fmt.Errorf("%w: failed to classify intent: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var classification intentClassification
	if err := json.Unmarshal([]byte(candidateText(response)), &classification); err != nil {
		err = fmt.Errorf("%w: failed to decode intent classification: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	intent := parseIntent(classification.Intent)
	span.SetAttributes(attribute.String("response.intent", string(intent)))
	return intent, nil
}

func (c *Client) GenerateText(ctx context.Context, query string, contextPassages []string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate text answer")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.textModel))

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: c.textPersona}}},
	}

	response, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(answerPrompt(query, contextPassages)), config)
	if err != nil {
		err = fmt.Errorf("%w: failed to generate text answer: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	answer := candidateText(response)
	if answer == "" {
		err := fmt.Errorf("%w: text answer response carried no content", gateway.ErrGateway)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return answer, nil
}

func (c *Client) GenerateAudioStream(ctx context.Context, query string, contextPassages []string) (gateway.AudioStream, error) {
	ctx, span := tracer.Start(ctx, "open audio stream")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.audioModel))

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
	}
	prompt := fmt.Sprintf("System Prompt: %s\n\n%s", c.audioPersona, answerPrompt(query, contextPassages))

	return &audioStream{
		responses: c.client.Models.GenerateContentStream(ctx, c.audioModel, genai.Text(prompt), config),
	}, nil
}

// EmbedText returns the embedding vector for one text. It backs the vector
// store's embedding function.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "embed text")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.embeddingModel))

	response, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, genai.Text(text), nil)
	if err != nil {
		err = fmt.Errorf("%w: failed to embed text: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		err := fmt.Errorf("%w: embedding response carried no vectors", gateway.ErrGateway)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return response.Embeddings[0].Values, nil
}

// answerPrompt frames a query with its relevance-ordered context passages.
func answerPrompt(query string, contextPassages []string) string {
	return fmt.Sprintf("Context:\n---\n%s\n---\n\nQuestion: %s", strings.Join(contextPassages, "\n"), query)
}

func parseIntent(raw string) gateway.Intent {
	if strings.EqualFold(strings.TrimSpace(raw), string(gateway.IntentDescription)) {
		return gateway.IntentDescription
	}
	return gateway.IntentQuestion
}

// candidateText concatenates the text parts of the first candidate.
func candidateText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
