package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hsk98/rota/internal/domain"
	"github.com/hsk98/rota/internal/engine"
)

// ReassignOptions holds flags for the reassign command.
type ReassignOptions struct {
	*RootOptions
	Reason string
	Source string
	Cap    int
}

// NewReassignCommand creates the reassign command.
func NewReassignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReassignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reassign <assignment-id>",
		Short: "Rebind an assignment to a different resource",
		Long: `Rebind an active assignment to a different resource.

Every resource the assignment was ever bound to is excluded from the re-run,
and a lineage record is appended whether the attempt succeeds or fails.

Example:
  rota reassign 0190f3a2-... --reason "language mismatch" --source agent_request`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reassign(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the rebind is requested")
	cmd.Flags().StringVar(&opts.Source, "source", string(domain.SourceAgentRequest),
		"who triggered it (agent_request|system_automatic|admin_override)")
	cmd.Flags().IntVar(&opts.Cap, "cap", 0, "refuse once the assignment has this many rebinds (0 = unlimited)")
	cmd.MarkFlagRequired("reason")

	return cmd
}

func reassign(opts *ReassignOptions, assignmentID string, cmd *cobra.Command) error {
	st, eng, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	var (
		rec  domain.ReassignmentRecord
		rerr error
	)
	if opts.Cap > 0 {
		capped := engine.NewReassignmentCap(eng, opts.Cap)
		rec, rerr = capped.Reassign(cmd.Context(), assignmentID, opts.Reason, domain.ReassignmentSource(opts.Source))
	} else {
		rec, rerr = eng.Reassign(cmd.Context(), assignmentID, opts.Reason, domain.ReassignmentSource(opts.Source))
	}
	if rerr != nil {
		out.Error(domain.ErrorKind(rerr), rerr.Error())
		return WrapExitError(ExitFailure, "reassign", rerr)
	}

	if opts.Format == "json" {
		return out.JSON(rec)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reassigned %s: %s -> %s (seq %d)\n",
		rec.AssignmentID, rec.FromResourceID, rec.ToResourceID, rec.SequenceNumber)
	if rec.PreviousMatchScore != nil && rec.NewMatchScore != nil {
		out.VerboseLog("match score %.2f -> %.2f, took %dms", *rec.PreviousMatchScore, *rec.NewMatchScore, rec.ProcessingMs)
	}
	return nil
}
