package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/version"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of gatekeeper",
		Run: func(cmd *cobra.Command, args []string) {
			commit := version.Commit
			if commit == "" {
				commit = "unknown"
			}
			fmt.Printf("gatekeeper %s (%s) %s/%s\n", version.Version, commit, runtime.GOOS, runtime.GOARCH)
		},
	}
}
