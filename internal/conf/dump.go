// dump.go: rendering the effective settings for inspection.
package conf

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DumpYAML renders the effective settings as YAML, with credentials
// masked.
func (s *Settings) DumpYAML() ([]byte, error) {
	copied := *s
	if copied.Output.MySQL.Password != "" {
		copied.Output.MySQL.Password = "********"
	}

	data, err := yaml.Marshal(&copied)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}
