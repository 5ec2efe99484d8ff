package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/mcordes92/da-quizly/internal/media"
	"github.com/mcordes92/da-quizly/internal/models"
)

// minTranscriptLen is the shortest transcript worth building a quiz from;
// anything under it is treated as "no transcript".
const minTranscriptLen = 50

var (
	ErrInvalidURL   = errors.New("invalid YouTube URL")
	ErrNoTranscript = errors.New("no transcript found")
)

// DownloadError, TranscriptionError and GenerationError wrap failures of the
// three external calls in the pipeline so handlers can map each to a status
// code. None of them is retried.
type DownloadError struct{ Err error }

func (e *DownloadError) Error() string { return "download failed: " + e.Err.Error() }
func (e *DownloadError) Unwrap() error { return e.Err }

type TranscriptionError struct{ Err error }

func (e *TranscriptionError) Error() string { return "transcription failed: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

type GenerationError struct{ Err error }

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

type Downloader interface {
	DownloadAudio(ctx context.Context, url string) (wavPath string, cleanup func(), err error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service runs the synthesis pipeline: normalize the URL, download audio,
// transcribe it, prompt the model once, validate the response, and persist
// the quiz with its questions in a single transaction. Every step is
// fail-fast; a failure anywhere leaves no rows behind.
type Service struct {
	db          *gorm.DB
	downloader  Downloader
	transcriber Transcriber
	generator   Generator
}

func NewService(db *gorm.DB, downloader Downloader, transcriber Transcriber, generator Generator) *Service {
	return &Service{
		db:          db,
		downloader:  downloader,
		transcriber: transcriber,
		generator:   generator,
	}
}

func (s *Service) CreateFromVideo(ctx context.Context, userID uint, rawURL string) (*models.Quiz, error) {
	url, ok := media.NormalizeURL(rawURL)
	if !ok {
		return nil, ErrInvalidURL
	}

	wavPath, cleanup, err := s.downloader.DownloadAudio(ctx, url)
	defer cleanup()
	if err != nil {
		return nil, &DownloadError{Err: err}
	}

	transcript, err := s.transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	if len(strings.TrimSpace(transcript)) < minTranscriptLen {
		return nil, ErrNoTranscript
	}

	raw, err := s.generator.Generate(ctx, BuildPrompt(transcript))
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	generated, err := ParseQuiz(raw)
	if err != nil {
		return nil, err
	}

	quiz, err := s.persist(userID, url, generated)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: created quiz %d with %d questions for user %d", quiz.ID, len(quiz.Questions), userID)
	return quiz, nil
}

func (s *Service) persist(userID uint, url string, generated *GeneratedQuiz) (*models.Quiz, error) {
	quiz := &models.Quiz{
		UserID:      userID,
		Title:       generated.Title,
		Description: generated.Description,
		VideoURL:    url,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(quiz).Error; err != nil {
			return err
		}
		for _, q := range generated.Questions {
			opts, err := json.Marshal(q.QuestionOptions)
			if err != nil {
				return err
			}
			question := models.Question{
				QuizID:          quiz.ID,
				QuestionTitle:   q.QuestionTitle,
				QuestionOptions: opts,
				Answer:          q.Answer,
			}
			if err := tx.Create(&question).Error; err != nil {
				return err
			}
			quiz.Questions = append(quiz.Questions, question)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save quiz: %w", err)
	}

	return quiz, nil
}
