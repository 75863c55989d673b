package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)
	extensionPattern     = regexp.MustCompile(`^[a-z0-9]{1,10}$`)
)

// BuildUploadArchivePath returns the archive key for a raw dataset upload.
// Keys look like sessions/<session>/<dataset>/<upload-id>.<ext>.
func BuildUploadArchivePath(sessionID, datasetName, uploadID, extension string) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(datasetName, "dataset name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(uploadID, "upload id"); err != nil {
		return "", err
	}
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))
	if !extensionPattern.MatchString(extension) {
		return "", fmt.Errorf("invalid file extension: %q", extension)
	}
	return path.Join(
		"sessions",
		sessionID,
		datasetName,
		fmt.Sprintf("%s.%s", uploadID, extension),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
