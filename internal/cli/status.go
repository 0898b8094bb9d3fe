package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show paths and a configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wayfarer %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config file not found, using defaults")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config error: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			models := append([]string{cfg.Provider.Model}, cfg.Provider.Fallbacks...)
			fmt.Fprintf(out, "Provider: kind=%s models=%s\n", cfg.Provider.Kind, strings.Join(models, ","))
			fmt.Fprintf(out, "Extract:  model=%s\n", cfg.Extractor.Model)

			storePath := "-"
			if cfg.Store.Driver == "sqlite" {
				storePath = paths.DatabasePath(&cfg)
			}
			fmt.Fprintf(out, "Store:    driver=%s path=%s\n", cfg.Store.Driver, storePath)

			fast := cfg.FastTier
			if fast.Driver == "redis" {
				fmt.Fprintf(out, "Memory:   tier=redis addr=%s codec=%s ttl=%s window=%d\n", fast.Redis.Addr, fast.Codec, fast.TTL(), cfg.Memory.MaxHistoryMessages)
			} else {
				fmt.Fprintf(out, "Memory:   tier=local capacity=%d codec=%s ttl=%s window=%d\n", fast.LocalCapacity, fast.Codec, fast.TTL(), cfg.Memory.MaxHistoryMessages)
			}

			ac := cfg.AgentCache
			fmt.Fprintf(out, "Agents:   capacity=%d write-ttl=%s idle-ttl=%s sweep=%q bypass=%d%%\n",
				ac.Capacity, ac.ExpireAfterWrite(), ac.ExpireAfterAccess(), ac.SweepSchedule, ac.BypassPercent)

			var tools []string
			if cfg.Tools.Weather.IsEnabled() {
				tools = append(tools, "weatherForecast")
			}
			if cfg.Tools.POI.IsEnabled() && cfg.Store.Driver == "sqlite" {
				tools = append(tools, "poiSearch")
			}
			for _, m := range cfg.Tools.MCP {
				tools = append(tools, "mcp:"+m.Name)
			}
			fmt.Fprintf(out, "Tools:    %s\n", strings.Join(tools, ", "))

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}
}
