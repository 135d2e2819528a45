package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mapsync/internal/feature"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Class string
	Title string
}

// FeatureSummary is one row of list output.
type FeatureSummary struct {
	ID       string `json:"id"`
	Class    string `json:"class"`
	Title    string `json:"title"`
	Geometry string `json:"geometry,omitempty"`
	Points   int    `json:"points,omitempty"`
}

func summarize(f *feature.Feature) FeatureSummary {
	s := FeatureSummary{ID: f.ID, Class: string(f.Class()), Title: f.Title()}
	if f.Geometry != nil {
		s.Geometry = string(f.Geometry.Type)
		s.Points = f.Geometry.NumPositions()
	}
	return s
}

// FeatureList is the list command's result.
type FeatureList []FeatureSummary

func (l FeatureList) String() string {
	var b strings.Builder
	for i, s := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %q", s.ID, s.Class, s.Title)
		if s.Geometry != "" {
			fmt.Fprintf(&b, " %s/%d", s.Geometry, s.Points)
		}
	}
	return b.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Poll the map once and list its features",
		Long: `Poll the map once and print one line per feature, sorted by id.

Example:
  mapsync list
  mapsync list --class Shape --title "Area 1"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "", "only list features of this class")
	cmd.Flags().StringVar(&opts.Title, "title", "", "only list features with this title")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	env, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.refresh(commandContext(cmd)); err != nil {
		return err
	}

	features := env.sess.GetFeatures(feature.Class(opts.Class), opts.Title)
	list := make(FeatureList, 0, len(features))
	for _, f := range features {
		list = append(list, summarize(f))
	}
	slices.SortFunc(list, func(a, b FeatureSummary) int { return strings.Compare(a.ID, b.ID) })

	return newFormatter(opts.RootOptions, cmd).Success(list)
}
