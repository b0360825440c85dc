package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openpref/preflearn/internal/runlog"
	"github.com/openpref/preflearn/internal/segment"
)

// #region inspect-cmd

func newInspectCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "inspect [run-name]",
		Short: "Summarize a run database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := segment.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			nSegs, err := store.CountSegments()
			if err != nil {
				return err
			}
			cmps, err := store.ListComparisons()
			if err != nil {
				return err
			}
			labeled := 0
			for _, c := range cmps {
				if c.Label != "unlabeled" {
					labeled++
				}
			}
			fmt.Printf("segments:    %d\n", nSegs)
			fmt.Printf("comparisons: %d (%d labeled)\n", len(cmps), labeled)

			if len(args) == 1 {
				events, err := runlog.ListEvents(store.DB(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("run %q: %d events\n", args[0], len(events))
				for _, ev := range events {
					detail := ""
					if s, ok := ev.Detail.(string); ok {
						detail = "  " + s
					}
					fmt.Printf("  %s  %s%s\n", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.EventType, detail)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "teach.db", "run database path")
	return cmd
}

// #endregion inspect-cmd
