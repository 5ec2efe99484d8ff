package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// WhisperTranscriber runs the whisper.cpp CLI over a WAV file. The binary
// and model paths come from configuration; there is no Go speech-to-text
// client to wrap.
type WhisperTranscriber struct {
	BinPath   string
	ModelPath string
}

func NewWhisperTranscriber(binPath, modelPath string) *WhisperTranscriber {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &WhisperTranscriber{BinPath: binPath, ModelPath: modelPath}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	outBase := strings.TrimSuffix(wavPath, ".wav")

	cmd := exec.CommandContext(ctx, t.BinPath,
		"-m", t.ModelPath,
		"-f", wavPath,
		"-otxt",
		"-of", outBase,
		"-np",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("whisper failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}

	return strings.TrimSpace(string(raw)), nil
}
