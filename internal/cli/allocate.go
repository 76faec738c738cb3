package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hsk98/rota/internal/domain"
	"github.com/hsk98/rota/internal/engine"
)

// AllocateOptions holds flags for the allocate command.
type AllocateOptions struct {
	*RootOptions
	Require []string
	Ref     string
	RefName string
}

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AllocateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "allocate <agent-id>",
		Short: "Allocate a resource to an agent",
		Long: `Run the assignment pipeline for one agent and commit the selection.

Requirements are "capability" or "capability:priority" (priority 1 is most
important; the default is 1).

Example:
  rota allocate sdr-7 --require spanish:1 --require enterprise:2 --ref lead-1042`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return allocate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Require, "require", nil, "capability requirement (repeatable)")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "external reference (lead id, ticket, ...)")
	cmd.Flags().StringVar(&opts.RefName, "ref-name", "", "human-readable reference name")

	return cmd
}

func allocate(opts *AllocateOptions, agentID string, cmd *cobra.Command) error {
	reqs, err := parseRequirements(opts.Require)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse requirements", err)
	}

	st, eng, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	result, err := eng.Allocate(cmd.Context(), engine.AllocationRequest{
		AgentID:         agentID,
		ExternalRef:     opts.Ref,
		ExternalRefName: opts.RefName,
		Requirements:    reqs,
	})
	if err != nil {
		out.Error(domain.ErrorKind(err), err.Error())
		return WrapExitError(ExitFailure, "allocate", err)
	}

	if opts.Format == "json" {
		return out.JSON(result)
	}

	a := result.Assignment
	fmt.Fprintf(cmd.OutOrStdout(), "assigned %s -> %s (assignment %s)\n", a.AgentID, a.ResourceID, a.ID)
	out.VerboseLog("method=%s fairness=%.2f match=%.2f fallback=%v attempts=%d",
		a.Method, result.FairnessScore, result.MatchScore, result.FallbackUsed, result.Attempts)
	for _, ru := range result.RunnersUp {
		out.VerboseLog("runner-up %s fairness=%.2f match=%.2f", ru.ResourceID, ru.FairnessScore, ru.MatchScore)
	}
	return nil
}

// parseRequirements turns "cap" / "cap:prio" flag values into requirements.
func parseRequirements(raw []string) ([]domain.CapabilityRequirement, error) {
	var reqs []domain.CapabilityRequirement
	for _, r := range raw {
		id, prioStr, found := strings.Cut(r, ":")
		prio := 1
		if found {
			p, err := strconv.Atoi(prioStr)
			if err != nil {
				return nil, fmt.Errorf("requirement %q: priority is not a number: %w", r, err)
			}
			prio = p
		}
		reqs = append(reqs, domain.CapabilityRequirement{ID: id, Priority: prio})
	}
	return reqs, nil
}
