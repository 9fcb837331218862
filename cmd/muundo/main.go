// Command muundo inspects model definition directories: it compiles and
// registers every definition the way a service would at startup, and reports
// what came out.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wira-labs/go-muundo/core/persistence"
	"github.com/wira-labs/go-muundo/memory"
)

func main() {
	root := &cobra.Command{
		Use:           "muundo",
		Short:         "Inspect and check model definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(checkCmd(&verbose))
	root.AddCommand(describeCmd(&verbose))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

// loadRegistry compiles every definition in dir against an in-memory store.
func loadRegistry(ctx context.Context, dir string, verbose bool) (*persistence.Registry, error) {
	logger, err := newLogger(verbose)
	if err != nil {
		return nil, err
	}
	registry := persistence.NewRegistry()
	loader := persistence.NewLoader(registry, memory.NewStore(logger), logger)
	if err := loader.LoadDir(ctx, dir); err != nil {
		return nil, err
	}
	return registry, nil
}

func checkCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "check <dir>",
		Short: "Compile every model definition in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd.Context(), args[0], *verbose)
			if err != nil {
				return err
			}
			names := registry.Names()
			fmt.Fprintf(cmd.OutOrStdout(), "%d model(s) compiled\n", len(names))
			for _, name := range names {
				cs := registry.Get(name).Schema()
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d field(s), %d accessor(s)\n",
					name, len(cs.Fields), len(cs.Accessors))
			}
			return nil
		},
	}
}

func describeCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <dir> <model>",
		Short: "Show the compiled schema of one model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd.Context(), args[0], *verbose)
			if err != nil {
				return err
			}
			model := registry.Get(args[1])
			if model == nil {
				return fmt.Errorf("model %q not found in %s", args[1], args[0])
			}
			cs := model.Schema()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model %s\n", cs.Name)

			fields := make([]string, 0, len(cs.Fields))
			for name := range cs.Fields {
				fields = append(fields, name)
			}
			sort.Strings(fields)
			for _, name := range fields {
				field := cs.Fields[name]
				line := fmt.Sprintf("  %s: %s", name, field.Type)
				if field.Ref != "" {
					line += " -> " + field.Ref
				}
				if field.Required {
					line += " (required)"
				}
				fmt.Fprintln(out, line)
			}

			for _, name := range cs.AccessorNames() {
				fmt.Fprintf(out, "  %s: derived\n", name)
			}
			return nil
		},
	}
}
