package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lmserv/internal/config"
	"lmserv/internal/grammar"
	"lmserv/internal/registry"
	"lmserv/internal/tools"
	"lmserv/pkg/types"
)

func newGrammarCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:     "grammar <schema.json>",
		Short:   "Print the GBNF grammar for a JSON Schema file",
		Example: "  lmserv grammar schema.json > schema.gbnf",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := grammar.Parse(b)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), grammar.Compile(name, s))
			return err
		},
	}
	cmd.Flags().StringVar(&name, "root", "root", "Name of the top-level rule")
	return cmd
}

func newToolsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect or edit a tools file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("tools requires a subcommand: list|grammar|validate|add|update|delete")
		},
	}
	cmd.PersistentFlags().StringVar(&path, "tools", "tools.json", "Tools file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List defined tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tools.Load(path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, t := range store.All() {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
			}
			return tw.Flush()
		},
	}
	gram := &cobra.Command{
		Use:   "grammar",
		Short: "Print the tool-call grammar passed to workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tools.Load(path)
			if err != nil {
				return err
			}
			g, err := store.Grammar()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), g)
			return err
		},
	}
	validate := &cobra.Command{
		Use:   "validate <output.json>",
		Short: "Check a model reply against the tool-call schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tools.Load(path)
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := store.ValidateCall(string(b)); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
	cmd.AddCommand(list, gram, validate,
		newToolsAddCmd(&path), newToolsUpdateCmd(&path), newToolsDeleteCmd(&path))
	return cmd
}

// parametersArg reads a JSON Schema given inline or, with a leading @, from a
// file.
func parametersArg(v string) (json.RawMessage, error) {
	if v == "" {
		return nil, nil
	}
	if name, ok := strings.CutPrefix(v, "@"); ok {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(b), nil
	}
	return json.RawMessage(v), nil
}

func newToolsAddCmd(path *string) *cobra.Command {
	var desc, params string
	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add a tool",
		Example: `  lmserv tools add get_weather --description "Current weather" --parameters @weather.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parametersArg(params)
			if err != nil {
				return err
			}
			store, err := tools.Load(*path)
			if err != nil {
				return err
			}
			t, err := store.Add(tools.Tool{Name: args[0], Description: desc, Parameters: p})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", t.Name)
			return err
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "Tool description")
	cmd.Flags().StringVar(&params, "parameters", "", "Parameters JSON Schema, inline or @file")
	return cmd
}

// newToolsUpdateCmd changes only the fields whose flags were given.
func newToolsUpdateCmd(path *string) *cobra.Command {
	var desc, params string
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change a tool's description or parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tools.Load(*path)
			if err != nil {
				return err
			}
			t, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", tools.ErrNotFound, args[0])
			}
			fl := cmd.Flags()
			if fl.Changed("description") {
				t.Description = desc
			}
			if fl.Changed("parameters") {
				if t.Parameters, err = parametersArg(params); err != nil {
					return err
				}
			}
			if _, err := store.Update(args[0], t); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "Tool description")
	cmd.Flags().StringVar(&params, "parameters", "", "Parameters JSON Schema, inline or @file; empty clears it")
	return cmd
}

func newToolsDeleteCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tools.Load(*path)
			if err != nil {
				return err
			}
			ok, err := store.Delete(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", tools.ErrNotFound, args[0])
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}

func newModelsCmd() *cobra.Command {
	var (
		dir    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List *.gguf models in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := registry.LoadDir(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(types.ModelsResponse{Models: models})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tQUANT\tPATH")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name, m.Quant, m.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "models", "Directory to scan")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// newLlamaCmd runs the resolved llama-cli with the given args, attached to
// this terminal.
func newLlamaCmd(root *rootOptions) *cobra.Command {
	var bin string
	cmd := &cobra.Command{
		Use:                "llama [-- args...]",
		Short:              "Run the resolved llama-cli directly",
		Example:            "  lmserv llama -- -m models/gemma.gguf -p hello -n 16",
		RunE: func(cmd *cobra.Command, args []string) error {
			override := bin
			if override == "" && root.configPath != "" {
				cfg, err := config.Load(root.configPath)
				if err != nil {
					return err
				}
				override = cfg.LlamaBin
			}
			if override == "" {
				override = os.Getenv(config.EnvPrefix + "LLAMA_BIN")
			}
			path, err := config.ResolveLlamaBin(override)
			if err != nil {
				return err
			}
			c := exec.CommandContext(cmd.Context(), path, args...)
			c.Stdin = cmd.InOrStdin()
			c.Stdout = cmd.OutOrStdout()
			c.Stderr = cmd.ErrOrStderr()
			return c.Run()
		},
	}
	cmd.Flags().StringVar(&bin, "llama-bin", "", "llama-cli executable")
	return cmd
}
