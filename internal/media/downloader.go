package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// AudioDownloader fetches the best audio track of a video with yt-dlp and
// converts it to 16 kHz mono WAV with ffmpeg, the sample format whisper
// expects.
type AudioDownloader struct {
	FFmpegPath string
}

func NewAudioDownloader(ffmpegPath string) *AudioDownloader {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &AudioDownloader{FFmpegPath: ffmpegPath}
}

// DownloadAudio downloads the audio for url into a fresh temp directory and
// returns the path of the converted WAV file. The caller must invoke cleanup
// to remove the temp directory; cleanup is safe to call even on error.
func (d *AudioDownloader) DownloadAudio(ctx context.Context, url string) (string, func(), error) {
	tmp, err := os.MkdirTemp("", "quizly-audio-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmp) }

	id, ok := VideoID(url)
	if !ok {
		return "", cleanup, fmt.Errorf("could not extract video id from %q", url)
	}

	dl := ytdlp.New().
		Format("bestaudio/best").
		NoPlaylist().
		Quiet().
		Output(filepath.Join(tmp, "%(id)s.%(ext)s"))

	if _, err := dl.Run(ctx, url); err != nil {
		return "", cleanup, fmt.Errorf("yt-dlp failed for %s: %w", url, err)
	}

	downloaded, err := findDownloaded(tmp, id)
	if err != nil {
		return "", cleanup, err
	}

	wav := filepath.Join(tmp, id+".wav")
	conv := exec.CommandContext(ctx, d.FFmpegPath,
		"-y", "-i", downloaded, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", wav)
	if out, err := conv.CombinedOutput(); err != nil {
		return "", cleanup, fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return wav, cleanup, nil
}

func findDownloaded(dir, id string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, id+".") && !strings.HasSuffix(name, ".wav") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("failed to download video audio for id %s", id)
}
