package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anotheregi/blastkeun/internal/mode"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the available sending modes",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPER SESSION\tPER DAY\tDELAY\tFEATURES")

		profiles := mode.List()
		for _, id := range mode.IDs() {
			p := profiles[id]
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s-%s\t%s\n",
				p.ID, p.Name, p.MaxPerSession, p.MaxPerDay,
				p.MinDelay, p.MaxDelay, strings.Join(p.Features, ", "))
		}
		return w.Flush()
	},
}
