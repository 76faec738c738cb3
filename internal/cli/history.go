package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <assignment-id>",
		Short: "Show an assignment's reassignment lineage",
		Long: `Show an assignment's reassignment lineage in append order.

Failed attempts are part of the lineage: they appear with seq "-" and the
error that stopped them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, eng, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := eng.History(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "history", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.JSON(records)
			}

			w := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(w, "assignment %s has never been reassigned\n", args[0])
				return nil
			}
			for _, rec := range records {
				seq := "-"
				if rec.Success {
					seq = fmt.Sprintf("%d", rec.SequenceNumber)
				}
				if rec.Success {
					fmt.Fprintf(w, "seq=%-3s %s -> %-20s source=%-16s reason=%q\n",
						seq, rec.FromResourceID, rec.ToResourceID, rec.Source, rec.Reason)
				} else {
					fmt.Fprintf(w, "seq=%-3s %s -> (failed)%12s source=%-16s error=%q\n",
						seq, rec.FromResourceID, "", rec.Source, rec.ErrorDetail)
				}
			}
			return nil
		},
	}
}
