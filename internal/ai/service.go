package ai

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

type Service struct {
	Client *genai.Client
	Model  string
}

func NewService(apiKey, model string) (*Service, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	log.Println("AI service initialized")
	return &Service{Client: client, Model: model}, nil
}

// Generate performs a single GenerateContent call. There is no retry: a
// failed or empty response fails the whole quiz-creation request.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := s.Client.Models.GenerateContent(
		ctx,
		s.Model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}

	return text, nil
}
