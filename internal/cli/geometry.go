package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mapsync/internal/geometry"
)

// geometryOp binds a subcommand name to an engine operation.
type geometryOp struct {
	name  string
	short string
	run   func(e *geometry.Engine, ctx context.Context, target, cutter geometry.Operand, opts ...geometry.OpOption) (geometry.Result, error)
}

var geometryOps = []geometryOp{
	{name: "cut", short: "Subtract the cutter from the target", run: (*geometry.Engine).Cut},
	{name: "expand", short: "Merge the cutter into the target", run: (*geometry.Engine).Expand},
	{name: "crop", short: "Keep only the part of the target inside the cutter", run: (*geometry.Engine).Crop},
}

// GeometryOptions holds flags for cut, expand and crop.
type GeometryOptions struct {
	EditOptions
	Fourify bool
	DryRun  bool
}

// GeometryResult reports an operation's outcome.
type GeometryResult struct {
	Operation string           `json:"operation"`
	Target    string           `json:"target"`
	Pieces    int              `json:"pieces"`
	Points    []int            `json:"points"`
	Siblings  []FeatureSummary `json:"siblings,omitempty"`
	DryRun    bool             `json:"dry_run,omitempty"`
	Queued    bool             `json:"queued,omitempty"`
}

func (r GeometryResult) String() string {
	var b strings.Builder
	verb := r.Operation
	if r.DryRun {
		verb += " (dry run)"
	}
	fmt.Fprintf(&b, "%s %s: %d piece(s), points %v", verb, r.Target, r.Pieces, r.Points)
	for _, s := range r.Siblings {
		id := s.ID
		if id == "" {
			id = "(queued)"
		}
		fmt.Fprintf(&b, "\nsibling %s %q", id, s.Title)
	}
	return b.String()
}

// NewGeometryCommand creates one of the cut, expand and crop commands.
func NewGeometryCommand(rootOpts *RootOptions, op geometryOp) *cobra.Command {
	opts := &GeometryOptions{EditOptions: EditOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   op.name + " <target> <cutter>",
		Short: op.short,
		Long: fmt.Sprintf(`%s.

Operands are feature titles, or ids written as id:<id>. The map is polled
once first so titles resolve against current state. The first result
piece replaces the target; further pieces become new features titled
<target>:N.

Example:
  mapsync %s "Area 1" "Creek"
  mapsync %s id:4f1c... "Boundary" --fourify --dry-run`, op.short, op.name, op.name),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeometry(opts, op, args, cmd)
		},
	}

	addEditFlags(cmd, &opts.EditOptions)
	cmd.Flags().BoolVar(&opts.Fourify, "fourify", false, "restore elevation and time on result vertices")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute the result without changing the map")

	return cmd
}

// parseOperand reads "id:<id>" as an id and anything else as a title.
func parseOperand(s string) geometry.Operand {
	if id, ok := strings.CutPrefix(s, "id:"); ok {
		return geometry.ByID(id)
	}
	return geometry.ByTitle(s)
}

func runGeometry(opts *GeometryOptions, op geometryOp, args []string, cmd *cobra.Command) error {
	env, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := commandContext(cmd)
	if err := env.refresh(ctx); err != nil {
		return err
	}

	var opOpts []geometry.OpOption
	if opts.Fourify {
		opOpts = append(opOpts, geometry.Fourify())
	}
	if opts.DryRun {
		opOpts = append(opOpts, geometry.ComputeOnly())
	} else {
		send, err := opts.sendOptions(env)
		if err != nil {
			return err
		}
		opOpts = append(opOpts, geometry.WithSendOptions(send...))
	}

	eng := geometry.New(env.sess)
	res, err := op.run(eng, ctx, parseOperand(args[0]), parseOperand(args[1]), opOpts...)
	if err != nil {
		return operationError(op.name+" failed", err)
	}

	out := GeometryResult{
		Operation: op.name,
		Target:    args[0],
		Pieces:    len(res.Pieces),
		DryRun:    opts.DryRun,
		Queued:    opts.Queued,
	}
	if res.Target != nil {
		out.Target = res.Target.Title()
	}
	for _, p := range res.Pieces {
		out.Points = append(out.Points, p.NumPositions())
	}
	for _, s := range res.Siblings {
		out.Siblings = append(out.Siblings, summarize(s))
	}
	return newFormatter(opts.RootOptions, cmd).Success(out)
}
