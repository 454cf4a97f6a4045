package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"registry-retain/internal/app"
)

type cleanupOptions struct {
	Owner            string
	Token            string
	Packages         string
	Only             []string
	Keep             int
	DryRun           bool
	IgnoreSkipTagged bool
	PageSize         int
	PaceMs           int
	APIURL           string
	RegistryURL      string
	HTTPTimeoutSec   int
	Report           string
}

func newCleanupCommand() *cobra.Command {
	opts := cleanupOptions{}
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy and delete expired package versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "Organization or owner of the packages")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Bearer token for the packages API")
	cmd.Flags().StringVar(&opts.Packages, "packages", "", "Comma-separated package names (required)")
	cmd.Flags().StringSliceVar(&opts.Only, "package", nil, "Restrict the run to a subset of the configured packages")
	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "Number of most-recent versions to always retain")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", true, "Compute and log decisions without deleting")
	cmd.Flags().BoolVar(&opts.IgnoreSkipTagged, "ignore-skip-tagged", false, "Parsed for compatibility, not consulted by the retention decision")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 50, "Versions per listing page")
	cmd.Flags().IntVar(&opts.PaceMs, "pace-ms", 1000, "Delay between upstream calls in ms")
	cmd.Flags().StringVar(&opts.APIURL, "api-url", "https://api.github.com", "Packages API base URL")
	cmd.Flags().StringVar(&opts.RegistryURL, "registry-url", "https://ghcr.io", "Container registry base URL")
	cmd.Flags().IntVar(&opts.HTTPTimeoutSec, "http-timeout", 60, "HTTP timeout in seconds")
	cmd.Flags().StringVar(&opts.Report, "report", "", "Write a YAML cleanup report to this path")

	_ = viper.BindPFlag("owner", cmd.Flags().Lookup("owner"))
	_ = viper.BindPFlag("token", cmd.Flags().Lookup("token"))
	_ = viper.BindPFlag("packages", cmd.Flags().Lookup("packages"))
	_ = viper.BindPFlag("only_packages", cmd.Flags().Lookup("package"))
	_ = viper.BindPFlag("keep", cmd.Flags().Lookup("keep"))
	_ = viper.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("ignore_skip_tagged", cmd.Flags().Lookup("ignore-skip-tagged"))
	_ = viper.BindPFlag("page_size", cmd.Flags().Lookup("page-size"))
	_ = viper.BindPFlag("pace_ms", cmd.Flags().Lookup("pace-ms"))
	_ = viper.BindPFlag("api_url", cmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("registry_url", cmd.Flags().Lookup("registry-url"))
	_ = viper.BindPFlag("http_timeout_sec", cmd.Flags().Lookup("http-timeout"))
	_ = viper.BindPFlag("report", cmd.Flags().Lookup("report"))

	return cmd
}

func runCleanup(ctx context.Context, cmd *cobra.Command, opts cleanupOptions) error {
	service := newAppService()
	result, err := service.CleanupPackages(ctx, app.CleanupRequest{
		Owner:            resolveString(cmd, opts.Owner, "owner", "owner"),
		Token:            resolveString(cmd, opts.Token, "token", "token"),
		Packages:         splitPackages(resolveString(cmd, opts.Packages, "packages", "packages")),
		Only:             resolveStrings(cmd, opts.Only, "only_packages", "package"),
		Keep:             resolveInt(cmd, opts.Keep, "keep", "keep"),
		DryRun:           resolveBool(cmd, opts.DryRun, "dry_run", "dry-run"),
		IgnoreSkipTagged: resolveBool(cmd, opts.IgnoreSkipTagged, "ignore_skip_tagged", "ignore-skip-tagged"),
		PageSize:         resolveInt(cmd, opts.PageSize, "page_size", "page-size"),
		PaceMs:           resolveInt(cmd, opts.PaceMs, "pace_ms", "pace-ms"),
		APIBaseURL:       resolveString(cmd, opts.APIURL, "api_url", "api-url"),
		RegistryBaseURL:  resolveString(cmd, opts.RegistryURL, "registry_url", "registry-url"),
		HTTPTimeoutSec:   resolveInt(cmd, opts.HTTPTimeoutSec, "http_timeout_sec", "http-timeout"),
		ReportPath:       resolveString(cmd, opts.Report, "report", "report"),
	})
	if err != nil {
		return err
	}
	if result.DryRun {
		fmt.Printf("dry-run: queued=%d excluded-layers=%d\n", len(result.QueuedURLs), len(result.ExcludedLayers))
		return nil
	}
	fmt.Printf("deleted %d package versions\n", result.Deleted)
	return nil
}

func splitPackages(value string) []string {
	var packages []string
	for _, part := range strings.Split(value, ",") {
		name := strings.TrimSpace(part)
		if name != "" {
			packages = append(packages, name)
		}
	}
	return packages
}

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetString(key)
}

func resolveStrings(cmd *cobra.Command, values []string, key string, flagName string) []string {
	if cmd == nil {
		if len(values) > 0 {
			return values
		}
		return viper.GetStringSlice(key)
	}
	if flagChanged(cmd, flagName) {
		return values
	}
	return viper.GetStringSlice(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func resolveInt(cmd *cobra.Command, value int, key string, flagName string) int {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetInt(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}
