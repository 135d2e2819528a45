package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/session"
)

// EditOptions holds flags shared by the commands that change the map.
type EditOptions struct {
	*RootOptions
	Queued      bool
	Description string
}

// EditResult reports what a change command did.
type EditResult struct {
	Action string `json:"action"`
	Class  string `json:"class"`
	ID     string `json:"id,omitempty"`
	Queued bool   `json:"queued"`
}

func (r EditResult) String() string {
	if r.Queued {
		return fmt.Sprintf("%s %s (queued)", r.Action, r.Class)
	}
	return fmt.Sprintf("%s %s %s", r.Action, r.Class, r.ID)
}

// sendOptions picks blocking or queued delivery. Queued delivery needs a
// journal, since this process exits before any worker runs.
func (o *EditOptions) sendOptions(env *mapEnv) ([]session.SendOption, error) {
	if !o.Queued {
		return []session.SendOption{session.Blocking()}, nil
	}
	if env.journal == nil {
		return nil, NewExitError(ExitCommandError, "--queued needs a journal in the config; run 'mapsync watch' to deliver it")
	}
	return []session.SendOption{session.Queued()}, nil
}

func addEditFlags(cmd *cobra.Command, opts *EditOptions) {
	cmd.Flags().BoolVar(&opts.Queued, "queued", false, "journal the request for 'mapsync watch' instead of sending it now")
}

// NewMarkerCommand creates the marker command.
func NewMarkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "marker <title> <lon> <lat>",
		Short: "Create a marker",
		Long: `Create a marker at lon, lat.

Example:
  mapsync marker -- "IC" -120.1 39.3
  mapsync marker --description "north lot" --queued -- "Staging" -120.2 39.4

Use -- before the arguments so negative coordinates are not read as flags.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMarker(opts, args, cmd)
		},
	}

	addEditFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Description, "description", "", "marker description")

	return cmd
}

func runMarker(opts *EditOptions, args []string, cmd *cobra.Command) error {
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid longitude", err)
	}
	lat, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid latitude", err)
	}

	env, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	send, err := opts.sendOptions(env)
	if err != nil {
		return err
	}
	if opts.Description != "" {
		send = append(send, session.WithProperties(map[string]any{"description": opts.Description}))
	}

	res, err := env.sess.AddMarker(commandContext(cmd), args[0], lon, lat, send...)
	if err != nil {
		return operationError("failed to create marker", err)
	}
	return newFormatter(opts.RootOptions, cmd).Success(EditResult{
		Action: "created",
		Class:  string(feature.ClassMarker),
		ID:     res.ID(),
		Queued: res.Queued,
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <class> <id>",
		Short: "Delete a feature",
		Long: `Delete one feature by class and id.

Example:
  mapsync delete Marker 6f0c1a52-8c41-4bd6-9d7e-0d1d3c4b1a77`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args, cmd)
		},
	}

	addEditFlags(cmd, opts)

	return cmd
}

func runDelete(opts *EditOptions, args []string, cmd *cobra.Command) error {
	env, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	send, err := opts.sendOptions(env)
	if err != nil {
		return err
	}

	class, id := feature.Class(args[0]), args[1]
	res, err := env.sess.DelFeature(commandContext(cmd), id, class, send...)
	if err != nil {
		return operationError("failed to delete feature", err)
	}
	return newFormatter(opts.RootOptions, cmd).Success(EditResult{
		Action: "deleted",
		Class:  string(class),
		ID:     id,
		Queued: res.Queued,
	})
}

// NewNewMapCommand creates the newmap command.
func NewNewMapCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newmap <title>",
		Short: "Create a map in the configured account",
		Long: `Create a new map in credentials.account_id and print its id.

Example:
  mapsync newmap "Search 2026-10-18"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			id, err := env.sess.CreateMap(commandContext(cmd), args[0])
			if err != nil {
				return operationError("failed to create map", err)
			}
			return newFormatter(rootOpts, cmd).Success(EditResult{Action: "created", Class: "CollaborativeMap", ID: id})
		},
	}
	return cmd
}
