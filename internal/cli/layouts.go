package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/procura/internal/compiler"
	"github.com/roach88/procura/internal/extract"
)

// LayoutSummary describes one compiled layout.
type LayoutSummary struct {
	Variant string   `json:"variant"`
	Stage   string   `json:"stage"`
	Labels  int      `json:"labels"`
	Items   []string `json:"items,omitempty"`
	Voids   []string `json:"voids,omitempty"`
}

// LayoutList is the layouts command result.
type LayoutList []LayoutSummary

func (l LayoutList) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d layout(s)\n", len(l))
	for _, s := range l {
		fmt.Fprintf(&b, "  %-10s %-14s labels=%d", s.Variant, s.Stage, s.Labels)
		if len(s.Items) > 0 {
			fmt.Fprintf(&b, " items=[%s]", strings.Join(s.Items, ","))
		}
		if len(s.Voids) > 0 {
			fmt.Fprintf(&b, " voids=[%s]", strings.Join(s.Voids, ","))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// NewLayoutsCommand creates the layouts command.
func NewLayoutsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layouts [dir]",
		Short: "Compile and list document layouts",
		Long: `Compile the built-in layouts together with the .cue overrides in dir (or
the configured layouts directory) and list the result.

A layout that fails to compile is reported with its file position.

Example:
  procura layouts ./layouts`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runLayouts(rootOpts, dir, cmd)
		},
	}
	return cmd
}

func runLayouts(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Layouts
	}

	layouts, err := compiler.Load(dir)
	if err == nil {
		_, err = extract.NewLayoutRegistry(layouts)
	}
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) && ce.Pos.IsValid() {
			return formatter.fail(ExitFailure, ErrCodeLayout,
				fmt.Sprintf("%s:%d:%d: %s", ce.Pos.Filename(), ce.Pos.Line(), ce.Pos.Column(), ce.Message), err)
		}
		return formatter.fail(ExitFailure, ErrCodeLayout, "invalid layouts", err)
	}

	list := make(LayoutList, 0, len(layouts))
	for _, l := range layouts {
		list = append(list, LayoutSummary{
			Variant: l.Variant,
			Stage:   string(l.Stage),
			Labels:  len(l.Labels),
			Items:   columnFields(l.Items),
			Voids:   columnFields(l.Voids),
		})
	}
	return formatter.Success(list)
}

func columnFields(t *extract.TableSection) []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Field)
	}
	return out
}
