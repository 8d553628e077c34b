package utils

import (
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

var ErrInvalidFrame = errors.New("invalid frame")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// DecodeFrame accepts raw base64 or a data URL such as "data:image/jpeg;base64,...".
func DecodeFrame(frame string) ([]byte, error) {
	frame = strings.TrimSpace(frame)
	if i := strings.Index(frame, "base64,"); i >= 0 {
		frame = frame[i+len("base64,"):]
	}
	if frame == "" {
		return nil, ErrInvalidFrame
	}

	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(frame)
		if err != nil {
			return nil, ErrInvalidFrame
		}
	}
	if len(data) == 0 {
		return nil, ErrInvalidFrame
	}
	return data, nil
}

func AllowedImageExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// NormalizePlate uppercases and keeps letters and digits only.
func NormalizePlate(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range strings.ToUpper(plate) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
