package media

import "regexp"

var videoIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/)([A-Za-z0-9_-]{6,})`)

// NormalizeURL extracts the video id out of the common YouTube URL shapes
// (watch, youtu.be, embed with v=) and returns the canonical watch URL.
func NormalizeURL(raw string) (string, bool) {
	id, ok := VideoID(raw)
	if !ok {
		return "", false
	}
	return "https://www.youtube.com/watch?v=" + id, true
}

func VideoID(raw string) (string, bool) {
	m := videoIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}
