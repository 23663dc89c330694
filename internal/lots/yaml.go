package lots

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lotledger/internal/ledger"
)

// YAMLFile reads lots from a YAML document:
//
//	lots:
//	  - id: P1
//	    name: Norte
//	    capacity: 40
//	    active: true
//
// active defaults to true. Unlike the CSV source, invalid entries are an
// error: a YAML file is written by hand and a typo should not silently
// remove a lot.
type YAMLFile struct {
	Path string
}

type yamlDoc struct {
	Lots []yamlLot `yaml:"lots"`
}

type yamlLot struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Active   *bool  `yaml:"active"`
}

// Lots reads the file.
func (f *YAMLFile) Lots(ctx context.Context) ([]ledger.Lot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ledger.Lot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lots %s: %w", f.Path, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a lots document.
func ParseYAML(data []byte) ([]ledger.Lot, error) {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lots yaml: %w", err)
	}

	out := make([]ledger.Lot, 0, len(doc.Lots))
	seen := map[string]bool{}
	for i, l := range doc.Lots {
		lot := ledger.Lot{
			ID:       ledger.NormalizeText(l.ID),
			Name:     ledger.NormalizeText(l.Name),
			Capacity: l.Capacity,
			Active:   l.Active == nil || *l.Active,
		}
		if lot.Name == "" {
			lot.Name = lot.ID
		}
		if err := lot.Validate(); err != nil {
			return nil, fmt.Errorf("lots[%d]: %w", i, err)
		}
		if seen[lot.ID] {
			return nil, fmt.Errorf("lots[%d]: duplicate lot %q", i, lot.ID)
		}
		seen[lot.ID] = true
		out = append(out, lot)
	}
	return out, nil
}
