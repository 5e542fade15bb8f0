package validation

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/taxdeclaration/backend/src/logger"
)

// AllowedWorkbookContentTypes lists the MIME types http.DetectContentType may
// report for an .xlsx workbook, which is a zip container.
var AllowedWorkbookContentTypes = map[string]bool{
	"application/zip":          true,
	"application/octet-stream": true, // Fallback, the excelize open still has to succeed
	"text/plain":               false,
	"text/csv":                 false,
}

// ValidateWorkbookContentByMagicBytes checks the actual file signature of the
// workbook. It returns the detected content type and an error if validation fails.
func ValidateWorkbookContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512) // Read first 512 bytes for MIME detection
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read workbook for content type checking: %w", err)
	}

	// Reset the read pointer so the workbook reader sees the full file.
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", seekErr)
	}

	detectedContentType := http.DetectContentType(buffer[:n])
	detectedContentType = strings.ToLower(strings.Split(detectedContentType, ";")[0])

	if !AllowedWorkbookContentTypes[detectedContentType] {
		logger.Get().Warn("Workbook content type rejected (magic bytes)", "detectedContentType", detectedContentType)
		return detectedContentType, fmt.Errorf("detected content type '%s' is not consistent with an xlsx workbook", detectedContentType)
	}

	logger.Get().Debug("Workbook content type (magic bytes) validated", "detectedContentType", detectedContentType)
	return detectedContentType, nil
}
