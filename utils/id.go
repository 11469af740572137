package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a timestamp-based ID for uploaded file names.
func GenerateID() int64 {
	return time.Now().UnixNano()
}

// NewJobID returns a fresh hex job identifier for an output directory.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
