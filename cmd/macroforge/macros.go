package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"macroforge/internal/config"
	"macroforge/internal/diag"
	"macroforge/internal/diagfmt"
	"macroforge/internal/host"
	"macroforge/internal/registry"
)

var macrosCmd = &cobra.Command{
	Use:   "macros [flags] [dir]",
	Short: "List the macros available to a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMacros,
}

func init() {
	macrosCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type macroPayload struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

type packagePayload struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Runtime string `json:"runtime,omitempty"`
	Loaded  bool   `json:"loaded"`
}

type macrosPayload struct {
	Config   string           `json:"config,omitempty"`
	Macros   []macroPayload   `json:"macros"`
	Packages []packagePayload `json:"packages"`
}

func runMacros(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := config.Discover(dir)
	if err != nil {
		return err
	}
	h, err := host.New(cfg, host.Options{})
	if err != nil {
		return err
	}
	if len(h.Diagnostics) > 0 {
		bag := diag.NewBag(0)
		bag.AddAll(h.Diagnostics)
		diagfmt.Plain(os.Stderr, bag, nil, diagfmt.PathModeAuto)
	}

	payload := collectMacros(cfg, h)
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	renderMacros(cmd.OutOrStdout(), payload)
	return nil
}

func collectMacros(cfg *config.Config, h *host.Host) macrosPayload {
	payload := macrosPayload{Config: cfg.Path, Macros: []macroPayload{}, Packages: []packagePayload{}}
	for _, e := range h.Registry.AllMacros() {
		payload.Macros = append(payload.Macros, macroPayload{Module: e.Module, Name: e.Name, Kind: e.Kind.String()})
	}
	for _, pkg := range h.Packages {
		payload.Packages = append(payload.Packages, packagePayload{
			Name:    pkg.Name,
			Version: pkg.Manifest.Version,
			Runtime: pkg.Runtime,
			Loaded:  pkg.Loaded,
		})
	}
	return payload
}

func renderMacros(out io.Writer, p macrosPayload) {
	if p.Config != "" {
		fmt.Fprintf(out, "config: %s\n", p.Config)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tMACRO")
	for _, m := range p.Macros {
		fmt.Fprintf(tw, "%s\t%s\n", m.Kind, registry.Key{Module: m.Module, Name: m.Name})
	}
	_ = tw.Flush()

	if len(p.Packages) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tVERSION\tRUNTIME\tSTATUS")
	for _, pkg := range p.Packages {
		status := "skipped"
		if pkg.Loaded {
			status = "loaded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", pkg.Name, valueOrUnknown(pkg.Version), valueOrUnknown(pkg.Runtime), status)
	}
	_ = tw.Flush()
}
