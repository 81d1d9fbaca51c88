// Package devcontainer imports devcontainer.json files: parsing,
// mapping features onto the module catalog, merging with wizard input,
// and the validation around untrusted uploads.
package devcontainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Config is the subset of a devcontainer.json the importer acts on.
type Config struct {
	Features       map[string]any
	Customizations map[string]any
	ForwardPorts   []int
	RemoteEnv      map[string]string
	Image          string
	Dockerfile     string
}

// Parse decodes and validates devcontainer.json content. Known
// properties with the wrong type are reported; unknown properties are
// ignored, matching the devcontainer schema's open-world model.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, fmt.Errorf("invalid JSON at offset %d: %w", syn.Offset, err)
		}
		return nil, fmt.Errorf("invalid devcontainer.json: root must be an object: %w", err)
	}

	var errs []error
	cfg := &Config{
		Features:       map[string]any{},
		Customizations: map[string]any{},
		RemoteEnv:      map[string]string{},
	}

	if v, ok := raw["features"]; ok {
		if m, ok := v.(map[string]any); ok {
			cfg.Features = m
		} else {
			errs = append(errs, errors.New("property 'features' must be an object"))
		}
	}
	if v, ok := raw["customizations"]; ok {
		if m, ok := v.(map[string]any); ok {
			cfg.Customizations = m
		} else {
			errs = append(errs, errors.New("property 'customizations' must be an object"))
		}
	}
	if v, ok := raw["remoteEnv"]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			errs = append(errs, errors.New("property 'remoteEnv' must be an object"))
		} else {
			for k, val := range m {
				if s, ok := val.(string); ok {
					cfg.RemoteEnv[k] = s
				}
			}
		}
	}
	if v, ok := raw["forwardPorts"]; ok {
		list, ok := v.([]any)
		if !ok {
			errs = append(errs, errors.New("property 'forwardPorts' must be an array"))
		} else {
			cfg.ForwardPorts = extractPorts(list)
		}
	}
	if v, ok := raw["image"]; ok {
		if s, ok := v.(string); ok {
			cfg.Image = s
		} else {
			errs = append(errs, errors.New("property 'image' must be a string"))
		}
	}
	if v, ok := raw["dockerfile"]; ok {
		if s, ok := v.(string); ok {
			cfg.Dockerfile = s
		} else {
			errs = append(errs, errors.New("property 'dockerfile' must be a string"))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// extractPorts normalizes forwardPorts entries: plain numbers, numeric
// strings, and "host:container" strings (the container port is kept).
// Entries that fit none of these are dropped.
func extractPorts(list []any) []int {
	var ports []int
	for _, entry := range list {
		switch v := entry.(type) {
		case float64:
			ports = append(ports, int(v))
		case string:
			s := v
			if _, after, found := strings.Cut(v, ":"); found {
				s = after
			}
			if p, err := strconv.Atoi(s); err == nil {
				ports = append(ports, p)
			}
		}
	}
	return ports
}
