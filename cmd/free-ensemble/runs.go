package main

import (
	"fmt"
	"strings"

	ensmath "github.com/drakos74/free-ensemble/internal/math"
	"github.com/drakos74/free-ensemble/internal/storage"
	jsonstore "github.com/drakos74/free-ensemble/internal/storage/file/json"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the comparisons stored in the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("out")
			var runs []Run
			err := jsonstore.NewEventRegistry(dir, "").GetAll(storage.K{Label: storage.RunsPath}, &runs)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %-18s mean=%s max=%s [%s]\n",
					r.Time.Format("2006-01-02 15:04:05"),
					r.ID,
					r.Mode,
					ensmath.Format(r.Mean, 4),
					ensmath.Format(r.Max, 4),
					strings.Join(r.Names, ","))
			}
			return nil
		},
	}
	cmd.Flags().String("out", storage.DefaultDir, "Directory the results are stored in")
	return cmd
}
