package library

import (
	"os"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"gopkg.in/yaml.v3"
)

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads the library sources config. A missing file is not
// an error; it yields an empty source list so the server still starts.
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(err, apperr.KindResource, "read sources config").
			WithContext("path", path)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "parse sources config").
			WithContext("path", path)
	}

	seen := make(map[string]bool, len(parsed.Sources))
	for _, src := range parsed.Sources {
		if src.ID == "" {
			return nil, apperr.New(apperr.KindInput, "source is missing an id").
				WithContext("path", path)
		}
		if src.Path == "" {
			return nil, apperr.Newf(apperr.KindInput, "source %q is missing a path", src.ID).
				WithContext("path", path)
		}
		if seen[src.ID] {
			return nil, apperr.Newf(apperr.KindInput, "duplicate source id %q", src.ID).
				WithContext("path", path)
		}
		seen[src.ID] = true
	}
	return parsed.Sources, nil
}
