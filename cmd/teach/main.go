// Command teach trains an RL agent from human or synthetic preferences
// over behavior clips instead of a hand-written reward function.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// #region root

func main() {
	root := &cobra.Command{
		Use:           "teach",
		Short:         "Preference-based reward learning for RL agents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newLabelerCmd(), newInspectCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion root
