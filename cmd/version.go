package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

// unknownVersion is printed for builds without module version information.
const unknownVersion = "(devel)"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long:  "Displays the runnel build version and the Go version used to build it.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version, goVersion := buildVersion()

			cmd.Printf("runnel %s\n", version)

			if goVersion != "" {
				cmd.Printf("built with %s\n", goVersion)
			}
		},
	}
}

func buildVersion() (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknownVersion, ""
	}

	if info.Main.Version == "" {
		return unknownVersion, info.GoVersion
	}

	return info.Main.Version, info.GoVersion
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
