package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/erazemk/najdeno/internal/model"
)

const geminiSystemPrompt = `You match lost-and-found reports on a university campus.
You receive one lost item report and one found item report as JSON.
Decide whether both reports describe the same physical object.
Consider category, name, description, colour, brand, location and dates.
A found date more than a day before the lost date rules out a match.
Answer with JSON only: {"is_match": boolean, "reason": string, "score": number between 0 and 1}.
Keep the reason to one short sentence.`

// generator is the part of the genai client used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model for a verdict.
type Gemini struct {
	models generator
	model  string
}

// NewGemini creates a Gemini classifier using the given API key and model.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{models: client.Models, model: modelName}, nil
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_match": {Type: genai.TypeBoolean},
		"reason":   {Type: genai.TypeString},
		"score":    {Type: genai.TypeNumber},
	},
	Required: []string{"is_match", "reason", "score"},
}

// Classify implements Classifier.
func (g *Gemini) Classify(ctx context.Context, lost, found *model.Item) (Verdict, error) {
	payload, err := json.Marshal(map[string]*model.Item{"lostItem": lost, "foundItem": found})
	if err != nil {
		return Verdict{}, fmt.Errorf("encoding items: %w", err)
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(string(payload), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(geminiSystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    verdictSchema,
		},
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		return Verdict{}, fmt.Errorf("%w: gemini generate: %w", ErrUnavailable, err)
	}

	text := responseText(resp)
	if text == "" {
		return Verdict{}, errors.New("gemini returned no content")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &v); err != nil {
		return Verdict{}, fmt.Errorf("decoding gemini verdict: %w", err)
	}
	v.Score = clampScore(v.Score)
	return v, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// stripCodeFence removes a ```json fence some models wrap around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
