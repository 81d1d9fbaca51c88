package devcontainer

import (
	"fmt"
	"sort"
	"strings"
)

// featureMappings maps module IDs to the devcontainer feature prefixes
// that select them. A feature like
// "ghcr.io/devcontainers/features/python:1" matches the python prefix.
var featureMappings = map[string][]string{
	"python": {
		"ghcr.io/devcontainers/features/python",
		"ghcr.io/devcontainers-contrib/features/python",
	},
	"node": {
		"ghcr.io/devcontainers/features/node",
		"ghcr.io/devcontainers-contrib/features/node",
	},
	"go": {
		"ghcr.io/devcontainers/features/go",
		"ghcr.io/devcontainers-contrib/features/go",
	},
	"rust": {
		"ghcr.io/devcontainers/features/rust",
		"ghcr.io/devcontainers-contrib/features/rust",
	},
	"java": {
		"ghcr.io/devcontainers/features/java",
		"ghcr.io/devcontainers-contrib/features/java",
	},
	"dotnet": {
		"ghcr.io/devcontainers/features/dotnet",
		"ghcr.io/microsoft/devcontainers/features/dotnet",
	},
	"ruby": {
		"ghcr.io/devcontainers/features/ruby",
		"ghcr.io/devcontainers-contrib/features/ruby",
	},
	"php": {
		"ghcr.io/devcontainers/features/php",
		"ghcr.io/devcontainers-contrib/features/php",
	},
}

// imageKeywords maps words found in image names to module IDs.
var imageKeywords = map[string]string{
	"python": "python",
	"node":   "node",
	"golang": "go",
	"go":     "go",
	"rust":   "rust",
	"java":   "java",
	"dotnet": "dotnet",
	"ruby":   "ruby",
	"php":    "php",
	"swift":  "swift",
	"dart":   "dart",
}

// MappingResult is what a devcontainer config translates to.
type MappingResult struct {
	Languages            []string
	EnvVars              map[string]string
	Ports                []int
	UnrecognizedFeatures []string
	Warnings             []string
}

// MapFeatures translates a parsed devcontainer config into module
// selections. Unrecognized features produce warnings, not errors.
func MapFeatures(cfg *Config) MappingResult {
	result := MappingResult{EnvVars: map[string]string{}}
	langs := map[string]bool{}

	featureIDs := make([]string, 0, len(cfg.Features))
	for id := range cfg.Features {
		featureIDs = append(featureIDs, id)
	}
	sort.Strings(featureIDs)

	for _, id := range featureIDs {
		lang, ok := matchFeature(id)
		if !ok {
			result.UnrecognizedFeatures = append(result.UnrecognizedFeatures, id)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("feature %q not mapped to any language module", id))
			continue
		}
		langs[lang] = true
	}

	for _, lang := range DetectImageLanguages(cfg.Image) {
		langs[lang] = true
	}

	for lang := range langs {
		result.Languages = append(result.Languages, lang)
	}
	sort.Strings(result.Languages)

	for k, v := range cfg.RemoteEnv {
		result.EnvVars[k] = v
	}
	result.Ports = append(result.Ports, cfg.ForwardPorts...)

	return result
}

func matchFeature(id string) (string, bool) {
	for lang, prefixes := range featureMappings {
		for _, prefix := range prefixes {
			if strings.HasPrefix(id, prefix) {
				return lang, true
			}
		}
	}
	return "", false
}

// DetectImageLanguages parses a docker image reference for language
// hints. Handles registry prefixes, tags and digests, and hyphenated
// names like "python-slim" or "mcr.microsoft.com/devcontainers/go".
func DetectImageLanguages(image string) []string {
	image = strings.ToLower(strings.TrimSpace(image))
	if image == "" {
		return nil
	}

	// Strip the digest and tag before looking at path segments.
	image, _, _ = strings.Cut(image, "@")
	image, _, _ = strings.Cut(image, ":")

	var detected []string
	seen := map[string]bool{}
	for _, segment := range strings.Split(image, "/") {
		segment = strings.ReplaceAll(segment, "_", "-")
		for _, part := range strings.Split(segment, "-") {
			lang, ok := imageKeywords[part]
			if !ok || seen[lang] {
				continue
			}
			seen[lang] = true
			detected = append(detected, lang)
		}
	}
	return detected
}
