package main

import (
	"fmt"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"stubgen/internal/layout"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List supported targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configured := make(map[string]bool, len(current.Targets))
		for _, t := range current.Targets {
			configured[t.Triple] = true
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %-4s %-7s %-7s %s\n", runewidth.FillRight("triple", 20), "ptr", "bytes", "words", "doubleword")
		for _, t := range layout.Targets() {
			mark := " "
			if configured[t.Triple] {
				mark = "*"
			}
			dw := "no"
			if t.HasDoublewordStore() {
				dw = "yes"
			}
			fmt.Fprintf(out, "%s %-4d %-7s %-7s %s\n", runewidth.FillRight(mark+t.Triple, 20), t.PtrSize, t.ByteOrder, t.FloatWordOrder, dw)
		}
		if !quiet(cmd) {
			fmt.Fprintln(out, "* configured for build")
		}
		return nil
	},
}
