// Package config implements the config subcommand printing the
// effective configuration.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isotrace/isotrace-go/internal/conf"
)

// Command creates the config command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := settings.DumpYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
