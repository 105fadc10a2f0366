package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/aretw0/strata/pkg/action"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Inspect and edit the filter stack of stored sessions",
	Long: `Reads and edits filter stacks held in the snapshot store. Edits go through
the session manager, so concurrent edits of one session are serialized.`,
}

var stackLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := setup(cmd)
		exitOnError(err)
		defer e.close()

		sessions, err := e.manager.List(cmd.Context())
		exitOnError(err)
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return
		}
		for _, s := range sessions {
			fmt.Println("- " + s)
		}
	},
}

var stackShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show the filter stack of a session",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := setup(cmd)
		exitOnError(err)
		defer e.close()

		id := e.session
		if len(args) == 1 {
			id = args[0]
		}
		snap, err := e.manager.Load(cmd.Context(), id)
		exitOnError(err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(snap, "", "  ")
			exitOnError(err)
			fmt.Println(string(data))
			return
		}
		out, err := tui.NewRenderer()(tui.StackMarkdown(id, snap.Stack, nil))
		exitOnError(err)
		fmt.Print(out)
	},
}

var stackPushCmd = &cobra.Command{
	Use:   "push <filter-json | @file>",
	Short: "Push a filter onto the active chain",
	Example: `  strata stack push '{"type":"range","itemType":"nodes","field":"age","min":18}'
  strata stack push @filter.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		def, err := parseFilter(args[0])
		exitOnError(err)
		editStack(cmd, filter.AddFilter(def))
	},
}

var stackReplaceCmd = &cobra.Command{
	Use:   "replace <filter-json | @file>",
	Short: "Replace the current filter",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		def, err := parseFilter(args[0])
		exitOnError(err)
		editStack(cmd, filter.ReplaceCurrentFilter(def))
	},
}

var stackPopCmd = &cobra.Command{
	Use:   "pop",
	Short: "Delete the current filter",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		editStack(cmd, filter.DeleteCurrentFilter())
	},
}

var stackOpenPastCmd = &cobra.Command{
	Use:   "open-past <index>",
	Short: "Suspend the active filters from index on",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		i, err := strconv.Atoi(args[0])
		exitOnError(err)
		editStack(cmd, filter.OpenPastFilter(i))
	},
}

var stackOpenFutureCmd = &cobra.Command{
	Use:   "open-future <index>",
	Short: "Reactivate suspended filters up to index",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		i, err := strconv.Atoi(args[0])
		exitOnError(err)
		editStack(cmd, filter.OpenFutureFilter(i))
	},
}

var stackResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every filter of the session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		editStack(cmd, filter.ResetFilters())
	},
}

var stackRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := setup(cmd)
		exitOnError(err)
		defer e.close()

		hasError := false
		for _, id := range args {
			if err := e.manager.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing '%s': %v\n", id, err)
				hasError = true
				continue
			}
			fmt.Printf("Removed session '%s'\n", id)
		}
		if hasError {
			os.Exit(1)
		}
	},
}

func editStack(cmd *cobra.Command, r action.Reducer[filter.Stack]) {
	e, err := setup(cmd)
	exitOnError(err)
	defer e.close()

	snap, err := e.manager.Update(cmd.Context(), e.session, r)
	exitOnError(err)

	out, err := tui.NewRenderer()(tui.StackMarkdown(e.session, snap.Stack, nil))
	exitOnError(err)
	fmt.Print(out)
}

// parseFilter reads one filter from inline JSON or, with a leading @, from a
// YAML or JSON file.
func parseFilter(arg string) (filter.Definition, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrInvalidFilter, err)
	}
	def, err := filter.Decode(raw)
	if err != nil {
		return nil, err
	}
	return def, filter.Validate(def)
}

func init() {
	rootCmd.AddCommand(stackCmd)
	stackCmd.AddCommand(stackLsCmd, stackShowCmd, stackPushCmd, stackReplaceCmd, stackPopCmd,
		stackOpenPastCmd, stackOpenFutureCmd, stackResetCmd, stackRmCmd)
	stackShowCmd.Flags().Bool("json", false, "Print the raw snapshot")
}
