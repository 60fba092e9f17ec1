package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"macroforge/internal/ir"
	"macroforge/internal/macros/builtin"
	"macroforge/internal/registry"
	"macroforge/internal/version"
)

// buildInfo is what `macroforge version` knows about this binary. Build
// fields stay empty unless set through -ldflags.
type buildInfo struct {
	Tool       string   `json:"tool"`
	Version    string   `json:"version"`
	ABIVersion int      `json:"abi_version"`
	Builtins   []string `json:"builtin_macros,omitempty"`
	GoVersion  string   `json:"go_version,omitempty"`
	Platform   string   `json:"platform,omitempty"`
	GitCommit  string   `json:"git_commit,omitempty"`
	GitMessage string   `json:"git_message,omitempty"`
	BuildDate  string   `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show macroforge build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		full, err := cmd.Flags().GetBool("full")
		if err != nil {
			return err
		}
		info, err := collectBuildInfo(full)
		if err != nil {
			return err
		}
		switch strings.ToLower(format) {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "pretty":
			renderVersionPretty(cmd.OutOrStdout(), info, full)
			return nil
		}
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	},
}

func init() {
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().Bool("full", false, "include toolchain, builtin macros and git metadata")
}

func collectBuildInfo(full bool) (buildInfo, error) {
	info := buildInfo{
		Tool:       "macroforge",
		Version:    version.Current(),
		ABIVersion: ir.ABIVersion,
	}
	if !full {
		return info, nil
	}
	reg, err := builtin.Add(registry.NewBuilder()).Build()
	if err != nil {
		return info, err
	}
	for _, m := range reg.AllMacros() {
		info.Builtins = append(info.Builtins, m.Name)
	}
	info.GoVersion = runtime.Version()
	info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	info.GitCommit = valueOrUnknown(version.GitCommit)
	info.GitMessage = valueOrUnknown(version.GitMessage)
	info.BuildDate = valueOrUnknown(version.BuildDate)
	return info, nil
}

func renderVersionPretty(out io.Writer, info buildInfo, full bool) {
	fmt.Fprintf(out, "macroforge %s (macro ABI %d)\n", version.Colored(), info.ABIVersion)
	if !full {
		return
	}
	fmt.Fprintf(out, "go:       %s %s\n", info.GoVersion, info.Platform)
	fmt.Fprintf(out, "builtins: %s\n", strings.Join(info.Builtins, ", "))
	fmt.Fprintf(out, "commit:   %s\n", info.GitCommit)
	fmt.Fprintf(out, "message:  %s\n", info.GitMessage)
	fmt.Fprintf(out, "built:    %s\n", info.BuildDate)
}

func valueOrUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
