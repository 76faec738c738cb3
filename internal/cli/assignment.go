package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hsk98/rota/internal/domain"
)

// NewAssignmentCommand creates the assignment command group.
func NewAssignmentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignment",
		Short: "Inspect and close assignments",
	}
	cmd.AddCommand(newAssignmentListCommand(rootOpts))
	cmd.AddCommand(newAssignmentShowCommand(rootOpts))
	cmd.AddCommand(newAssignmentCloseCommand(rootOpts, domain.StatusCompleted))
	cmd.AddCommand(newAssignmentCloseCommand(rootOpts, domain.StatusCancelled))
	return cmd
}

func newAssignmentListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List assignments, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			assignments, err := st.ListAssignments(cmd.Context(), domain.AssignmentStatus(status))
			if err != nil {
				return WrapExitError(ExitCommandError, "list assignments", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.JSON(assignments)
			}
			for _, a := range assignments {
				fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-10s %s -> %s (rebinds=%d)\n",
					a.ID, a.Status, a.AgentID, a.ResourceID, a.ReassignmentCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|completed|cancelled)")
	return cmd
}

func newAssignmentShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <assignment-id>",
		Short:         "Show one assignment",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			a, err := st.GetAssignment(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "show assignment", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.JSON(a)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "assignment %s\n", a.ID)
			fmt.Fprintf(w, "  agent:    %s\n", a.AgentID)
			fmt.Fprintf(w, "  resource: %s\n", a.ResourceID)
			fmt.Fprintf(w, "  status:   %s\n", a.Status)
			fmt.Fprintf(w, "  method:   %s\n", a.Method)
			if len(a.Requirements) > 0 {
				fmt.Fprintf(w, "  requires: %v (match %.2f, fallback %v)\n", a.Requirements, a.MatchScore, a.FallbackUsed)
			}
			fmt.Fprintf(w, "  assigned: %s\n", a.AssignedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(w, "  rebinds:  %d\n", a.ReassignmentCount)
			return nil
		},
	}
}

func newAssignmentCloseCommand(rootOpts *RootOptions, to domain.AssignmentStatus) *cobra.Command {
	use, short := "complete <assignment-id>", "Mark an assignment completed"
	if to == domain.StatusCancelled {
		use, short = "cancel <assignment-id>", "Cancel an assignment and reverse its allocation count"
	}

	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if to == domain.StatusCancelled {
				err = st.CancelAssignment(cmd.Context(), args[0])
			} else {
				err = st.CompleteAssignment(cmd.Context(), args[0])
			}
			if err != nil {
				return WrapExitError(ExitFailure, use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assignment %s is now %s\n", args[0], to)
			return nil
		},
	}
}
