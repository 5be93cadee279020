package playback

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// PlaybackService streams a loaded source to the UI player.
type PlaybackService interface {
	ServeSource(w http.ResponseWriter, r *http.Request, filePath string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeSource writes the source file honoring Range requests so the player
// can seek without downloading the whole recording.
func (s *Server) ServeSource(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "source not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "source is a directory", http.StatusBadRequest)
		return nil
	}

	contentType := ContentType(filePath)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
}

// ContentType resolves the media type for a source path. Known media
// extensions win over the platform MIME table, which varies between hosts.
func ContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
