package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"macroforge/internal/ir"
	"macroforge/internal/manifest"
	"macroforge/internal/registry"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect macro package manifests",
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check <macroforge.toml|package dir>",
	Short: "Validate a macro package manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}
		if m.ABIVersion != ir.ABIVersion {
			return &registry.AbiError{Package: m.Name, Expected: ir.ABIVersion, Got: m.ABIVersion}
		}
		quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
		if err != nil {
			return fmt.Errorf("failed to get quiet flag: %w", err)
		}
		if quiet {
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ok: %s %s (abi %d)\n", m.Name, valueOrUnknown(m.Version), m.ABIVersion)
		for _, entry := range m.Macros {
			fmt.Fprintf(out, "  %s %s\n", entry.Kind, entry.Name)
		}
		if m.Native != nil {
			fmt.Fprintf(out, "  native: %s\n", m.LibraryPath())
		}
		return nil
	},
}

func init() {
	manifestCmd.AddCommand(manifestCheckCmd)
}
