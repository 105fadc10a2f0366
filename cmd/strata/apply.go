package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/logging"
	mermaid "github.com/aretw0/strata/internal/presentation/graph"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply <graph.json> [filters.yaml]",
	Short: "Filter a graph file once and print the result",
	Long: `Reads a graph and a filter stack from files, runs the active filters and
writes the filtered graph. No session is read or written.

Formats:
- json (default): the filtered graph in the strata graph format.
- mermaid: the full graph as a Mermaid flowchart, filtered items greyed out.
- summary: the filter stack and the resulting counts.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		label, _ := cmd.Flags().GetString("label")
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = "warn"
		}
		lvl, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}

		g, err := graph.Load(args[0])
		if err != nil {
			return err
		}
		var stack filter.Stack
		if len(args) == 2 {
			if stack, err = filter.LoadFile(args[1]); err != nil {
				return err
			}
		}

		ws := strata.New(
			strata.WithLogger(logging.New(lvl)),
			strata.WithGraph(g),
			strata.WithStack(stack),
		)
		defer ws.Close()
		ws.Flush()
		if err := ws.Err(); err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return render(out, format, g, stack, ws.Filtered().Get(), label)
	},
}

func render(w io.Writer, format string, full *graph.Graph, stack filter.Stack, filtered *graph.Graph, label string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(filtered)
	case "mermaid":
		_, err := io.WriteString(w, mermaid.GenerateMermaid(full, &mermaid.Overlay{Filtered: filtered, Label: label}))
		return err
	case "summary":
		md := tui.StackMarkdown("apply", stack, filtered)
		out, err := tui.NewRenderer()(md)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		return fmt.Errorf("unknown format %q (json, mermaid, summary)", format)
	}
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringP("format", "f", "json", "Output format: json, mermaid or summary")
	applyCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	applyCmd.Flags().String("label", "", "Node attribute used as Mermaid label")
}
