package integrations

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"freightpool/internal/model"
)

// LoadFleet decodes a YAML document of the form {carriers: [...]} and
// validates every carrier.
func LoadFleet(r io.Reader) ([]model.Carrier, error) {
	var doc struct {
		Carriers []model.Carrier `yaml:"carriers"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fleet: %w", err)
	}
	seen := make(map[string]bool, len(doc.Carriers))
	for i, c := range doc.Carriers {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("fleet: carrier %d: %w", i, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("fleet: duplicate carrier %q", c.ID)
		}
		seen[c.ID] = true
	}
	return doc.Carriers, nil
}
