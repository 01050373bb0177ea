package advisor

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates advice with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Generator = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// responseSchema constrains the model to the Advice shape.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {
			Type:        genai.TypeString,
			Description: "A brief financial summary of the current month.",
		},
		"recommendations": {
			Type:        genai.TypeArray,
			Description: "2-3 specific, actionable financial recommendations.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
		"insights": {
			Type:        genai.TypeString,
			Description: "Additional insights based on location, occupation, and household size.",
		},
	},
	Required: []string{"summary", "recommendations"},
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}
