package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hsk98/rota/internal/domain"
)

// ResourceAddOptions holds flags for the resource add command.
type ResourceAddOptions struct {
	*RootOptions
	Name         string
	Email        string
	Phone        string
	Capabilities []string
	Inactive     bool
}

// NewResourceCommand creates the resource command group.
func NewResourceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Manage allocatable resources",
	}
	cmd.AddCommand(newResourceAddCommand(rootOpts))
	cmd.AddCommand(newResourceListCommand(rootOpts))
	cmd.AddCommand(newResourceActivateCommand(rootOpts, true))
	cmd.AddCommand(newResourceActivateCommand(rootOpts, false))
	return cmd
}

func newResourceAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResourceAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <resource-id>",
		Short: "Register a new resource",
		Long: `Register a new resource.

Example:
  rota resource add alice --name "Alice Liu" --cap spanish --cap enterprise`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return addResource(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (defaults to the id)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "contact phone")
	cmd.Flags().StringArrayVar(&opts.Capabilities, "cap", nil, "declared capability (repeatable)")
	cmd.Flags().BoolVar(&opts.Inactive, "inactive", false, "register deactivated")

	return cmd
}

func addResource(opts *ResourceAddOptions, id string, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	name := opts.Name
	if name == "" {
		name = id
	}
	r := domain.Resource{
		ID:           id,
		Name:         name,
		Email:        opts.Email,
		Phone:        opts.Phone,
		Active:       !opts.Inactive,
		Capabilities: opts.Capabilities,
	}
	if err := st.CreateResource(cmd.Context(), r); err != nil {
		return WrapExitError(ExitCommandError, "add resource", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return out.JSON(r)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added resource %s\n", id)
	return nil
}

func newResourceListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List resources with their counters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			resources, err := st.ListResources(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list resources", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.JSON(resources)
			}
			for _, r := range resources {
				state := "active"
				if !r.Active {
					state = "inactive"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s load=%d allocations=%d caps=%v\n",
					r.ID, state, r.CurrentLoad, r.AllocationCount, r.Capabilities)
			}
			return nil
		},
	}
}

func newResourceActivateCommand(rootOpts *RootOptions, active bool) *cobra.Command {
	use, short := "activate <resource-id>", "Return a resource to the rotation"
	if !active {
		use, short = "deactivate <resource-id>", "Remove a resource from the rotation"
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

			if err := st.SetResourceActive(cmd.Context(), args[0], active); err != nil {
				return WrapExitError(ExitCommandError, use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resource %s is now %s\n", args[0], map[bool]string{true: "active", false: "inactive"}[active])
			return nil
		},
	}
}
