package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileKind classifies an input file by extension
type FileKind string

const (
	KindText     FileKind = "text"
	KindDocument FileKind = "document"
	KindAudio    FileKind = "audio"
	KindUnknown  FileKind = "unknown"
)

var (
	textExtensions     = []string{".txt", ".md", ".markdown", ".text"}
	documentExtensions = []string{".yaml", ".yml", ".json"}
	audioMIMETypes     = map[string]string{
		".webm": "audio/webm",
		".ogg":  "audio/ogg",
		".opus": "audio/ogg",
		".wav":  "audio/wav",
		".flac": "audio/flac",
		".mp3":  "audio/mpeg",
		".m4a":  "audio/mp4",
	}
)

// ValidateInputFile checks if a file exists and is readable
func ValidateInputFile(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", filename)
		}
		return fmt.Errorf("cannot access file %s: %w", filename, err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filename)
	}

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("cannot read file %s: %w", filename, err)
	}
	return file.Close()
}

// ValidateFileSize rejects files larger than limit bytes; a limit of zero disables the check
func ValidateFileSize(filename string, limit int64) error {
	if limit <= 0 {
		return nil
	}
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("cannot access file %s: %w", filename, err)
	}
	if info.Size() > limit {
		return fmt.Errorf("file %s is %s, larger than the %s limit",
			filename, FormatFileSize(info.Size()), FormatFileSize(limit))
	}
	return nil
}

// ValidateOutputFile checks that the parent directory of an output path exists or can be created
func ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		}
	}
	return nil
}

// GetFileExtension returns the file extension in lowercase
func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// KindOf classifies filename by its extension
func KindOf(filename string) FileKind {
	ext := GetFileExtension(filename)
	switch {
	case slices.Contains(textExtensions, ext):
		return KindText
	case slices.Contains(documentExtensions, ext):
		return KindDocument
	case audioMIMETypes[ext] != "":
		return KindAudio
	default:
		return KindUnknown
	}
}

// AudioMIMEType returns the MIME type for an audio file, or "" when the extension is not audio
func AudioMIMEType(filename string) string {
	return audioMIMETypes[GetFileExtension(filename)]
}

// FormatFileSize returns a human-readable file size
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
