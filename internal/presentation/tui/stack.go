package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
)

// Describe returns a one-line summary of a filter.
func Describe(def filter.Definition) string {
	switch f := def.(type) {
	case filter.RangeFilter:
		lo, hi := "-inf", "+inf"
		if f.Min != nil {
			lo = strconv.FormatFloat(*f.Min, 'f', -1, 64)
		}
		if f.Max != nil {
			hi = strconv.FormatFloat(*f.Max, 'f', -1, 64)
		}
		return fmt.Sprintf("%s.%s in [%s, %s]%s", f.ItemType, f.Field, lo, hi, missing(f.KeepMissing))
	case filter.TermsFilter:
		terms := append([]string(nil), f.Terms...)
		sort.Strings(terms)
		return fmt.Sprintf("%s.%s in {%s}%s", f.ItemType, f.Field, strings.Join(terms, ", "), missing(f.KeepMissing))
	case filter.ScriptFilter:
		if f.Predicate != nil {
			return fmt.Sprintf("%s where <native predicate>", f.ItemType)
		}
		return fmt.Sprintf("%s where %s", f.ItemType, f.Script)
	case filter.TopologicalFilter:
		if len(f.Arguments) == 0 {
			return f.Method
		}
		keys := make([]string, 0, len(f.Arguments))
		for k := range f.Arguments {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		args := make([]string, len(keys))
		for i, k := range keys {
			args[i] = fmt.Sprintf("%s=%v", k, f.Arguments[k])
		}
		return fmt.Sprintf("%s(%s)", f.Method, strings.Join(args, ", "))
	default:
		return string(def.Kind())
	}
}

func missing(keep bool) string {
	if keep {
		return " or missing"
	}
	return ""
}

// StackMarkdown lays out a filter stack as a markdown table. The current
// filter is marked; future filters are listed after it. filtered may be nil.
func StackMarkdown(session string, stack filter.Stack, filtered *graph.Graph) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session `%s`\n\n", session)
	if stack.Depth() == 0 {
		sb.WriteString("_No filters._\n")
	} else {
		sb.WriteString("| # | | Kind | Filter |\n|---|---|---|---|\n")
		for i, def := range stack.Past {
			mark := "past"
			if i == len(stack.Past)-1 {
				mark = "**current**"
			}
			fmt.Fprintf(&sb, "| %d | %s | %s | `%s` |\n", i, mark, def.Kind(), escape(Describe(def)))
		}
		for i, def := range stack.Future {
			fmt.Fprintf(&sb, "| %d | future | %s | `%s` |\n", i, def.Kind(), escape(Describe(def)))
		}
	}
	if filtered != nil {
		fmt.Fprintf(&sb, "\n**%d** nodes, **%d** edges after filtering.\n", filtered.Order(), filtered.Size())
	}
	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
