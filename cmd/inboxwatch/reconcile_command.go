package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"inboxwatch/internal/daemon"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "List the files in every stage directory",
		Long: "List the files in every stage directory.\n\n" +
			"A file's directory is its state. Files left in the work directory\n" +
			"after a crash or shutdown can be moved back to the inbox to retry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			listings, err := daemon.Inventory(cfg)
			if err != nil {
				return fmt.Errorf("inventory: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(inventoryTable(listings)))

			for _, listing := range listings {
				if listing.Stage == "work" && len(listing.Files) > 0 {
					running, _ := daemon.IsRunning(cfg)
					if !running {
						fmt.Fprintf(out, "%d file(s) in %s are not being decoded; move them to the inbox to retry\n",
							len(listing.Files), listing.Dir)
					}
				}
			}
			return nil
		},
	}
}

func inventoryTable(listings []daemon.StageListing) tableSpec {
	spec := tableSpec{
		Headers: []string{"Stage", "File", "Size", "Modified"},
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	}
	total := 0
	for _, listing := range listings {
		switch {
		case listing.Missing:
			spec.Rows = append(spec.Rows, []string{listing.Stage, "(directory missing)", "", ""})
		case len(listing.Files) == 0:
			spec.Rows = append(spec.Rows, []string{listing.Stage, "(empty)", "", ""})
		}
		for _, f := range listing.Files {
			spec.Rows = append(spec.Rows, []string{
				listing.Stage,
				f.Name(),
				strconv.FormatInt(f.Size(), 10),
				f.ModTime().Local().Format("2006-01-02 15:04:05"),
			})
			total++
		}
	}
	spec.Footer = []string{"", fmt.Sprintf("%d files", total)}
	return spec
}
