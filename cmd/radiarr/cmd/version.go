package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/radiarr/internal/version"
	"github.com/spf13/cobra"
)

var versionJSON bool

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of radiarr.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			data, err := json.MarshalIndent(version.GetInfo(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling version info: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(version.String())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
