package devcontainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize bounds devcontainer.json uploads.
const MaxFileSize = 1024 * 1024

// sensitivePatterns flag environment variable names that likely carry
// credentials. Matched as case-insensitive substrings.
var sensitivePatterns = []string{
	"token", "key", "secret", "password", "credential",
	"api_key", "auth", "private",
}

// ValidatePath reports whether path stays inside baseDir once resolved,
// rejecting traversal via "..", absolute paths outside the base, and
// symlink-free lexical escapes.
func ValidatePath(path, baseDir string) bool {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return false
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(absBase, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(absBase, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateFileSize reports whether the file at path fits within
// MaxFileSize.
func ValidateFileSize(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size() <= MaxFileSize, nil
}

// IsSensitive reports whether an environment variable name looks like it
// carries a credential.
func IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// MaskValue hides a sensitive value for display. Short values are fully
// masked; longer ones keep the first and last two characters.
func MaskValue(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:2] + "***" + value[len(value)-2:]
}

// ValidatePorts splits ports into those inside the 1-65535 range and
// those outside it.
func ValidatePorts(ports []int) (valid, invalid []int) {
	for _, p := range ports {
		if p >= 1 && p <= 65535 {
			valid = append(valid, p)
		} else {
			invalid = append(invalid, p)
		}
	}
	return valid, invalid
}
