package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-dash/internal/registry"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured agency sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadSources(cfg.Registry.SourcesPath)
		if err != nil {
			return err
		}

		for _, src := range reg.All() {
			status := ""
			if src.Disabled {
				status = "  (disabled)"
			}
			fmt.Printf("%-12s %-30s %s%s\n", src.Code, src.Name, src.Agency, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
