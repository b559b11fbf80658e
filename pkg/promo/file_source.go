package promo

import (
	"context"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource loads the promo catalog from a YAML file shipped with or
// downloaded by the client.
//
// Expected layout:
//
//	codes:
//	  - code: TRIAL7
//	    discount_type: trial_days
//	    discount_value: 7
//	    max_uses: 100
//	  - code: SAVE20
//	    discount_type: percentage
//	    discount_value: 20
//	    max_uses: -1
//	    expires_at: 2026-01-01T00:00:00Z
type FileSource struct {
	path string
}

// NewFileSource returns a Source reading the YAML catalog at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type catalogFile struct {
	Codes []wireCode `yaml:"codes"`
}

// Load parses the catalog file, re-keyed by canonical code.
func (s *FileSource) Load(ctx context.Context) (map[string]Code, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	codes := make(map[string]Code, len(file.Codes))
	for _, entry := range file.Codes {
		code := entry.toCode()
		code.Code = Canonical(code.Code)
		codes[code.Code] = code
	}
	return codes, nil
}
