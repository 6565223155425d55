package common

import (
	"time"

	"github.com/google/uuid"
)

// NewRunID generates a unique identifier for one suite run
// Format: run-<yyyymmdd-hhmmss>-<first 8 chars of uuid>
func NewRunID() string {
	return "run-" + time.Now().Format("20060102-150405") + "-" + uuid.New().String()[:8]
}
