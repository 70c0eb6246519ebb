// Package media provides inspection helpers for user-captured clips: size
// probing for the inline-vs-upload decision, mime detection, and base64
// encoding for inline request payloads.
package media

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/RinkLab/ShotScope/internal/models"
)

// InlineLimitBytes is the maximum encoded payload size that is embedded
// directly in a request body. Larger media goes through upload-then-reference.
// Fixed policy: stays under the endpoint's request-size limit while avoiding
// an extra upload round-trip for small clips.
const InlineLimitBytes = 20 * 1024 * 1024

// sniffLen is how many bytes are read for content-type sniffing.
const sniffLen = 512

// EncodedSize returns the base64-encoded size of raw bytes.
func EncodedSize(rawSize int64) int64 {
	if rawSize <= 0 {
		return 0
	}
	return ((rawSize + 2) / 3) * 4
}

// UseInline reports whether a payload of the given encoded size should be
// embedded inline. The boundary is inclusive: exactly InlineLimitBytes is inline.
func UseInline(encodedSize int64) bool {
	return encodedSize <= InlineLimitBytes
}

// Inspect fills in the size and mime type of a clip from the file on disk.
func Inspect(clip *models.MediaClip) error {
	if err := clip.Validate(); err != nil {
		return err
	}
	info, err := os.Stat(clip.Path)
	if err != nil {
		slog.Error("media.Inspect stat failed", "error", err, "path", clip.Path)
		return fmt.Errorf("failed to stat clip %s: %w", clip.Path, err)
	}
	clip.SizeBytes = info.Size()
	if clip.MimeType == "" {
		mime, err := DetectMimeType(clip.Path)
		if err != nil {
			return err
		}
		clip.MimeType = mime
	}
	slog.Debug("media.Inspect succeeded", "path", clip.Path, "size", clip.SizeBytes, "mime", clip.MimeType)
	return nil
}

// DetectMimeType determines the mime type of a media file, preferring the
// file extension and falling back to content sniffing.
func DetectMimeType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4", nil
	case ".mov":
		return "video/quicktime", nil
	case ".m4v":
		return "video/x-m4v", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	case ".heic":
		return "image/heic", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open clip for sniffing: %w", err)
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", fmt.Errorf("failed to read clip for sniffing: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// IsVideo reports whether the mime type denotes video content. Video-bearing
// requests get a longer timeout than text or image requests.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

// EncodeFile reads a clip and returns its base64-encoded content along with
// the raw size in bytes.
func EncodeFile(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("media.EncodeFile read failed", "error", err, "path", path)
		return "", 0, fmt.Errorf("failed to read clip %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), int64(len(data)), nil
}
