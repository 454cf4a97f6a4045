package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"registry-retain/internal/app"
)

type listOptions struct {
	Owner          string
	Token          string
	Packages       string
	PageSize       int
	APIURL         string
	HTTPTimeoutSec int
}

func newListCommand() *cobra.Command {
	opts := listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored package versions and their protection status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "Organization or owner of the packages")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Bearer token for the packages API")
	cmd.Flags().StringVar(&opts.Packages, "packages", "", "Comma-separated package names (required)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 50, "Versions per listing page")
	cmd.Flags().StringVar(&opts.APIURL, "api-url", "https://api.github.com", "Packages API base URL")
	cmd.Flags().IntVar(&opts.HTTPTimeoutSec, "http-timeout", 60, "HTTP timeout in seconds")

	_ = viper.BindPFlag("owner", cmd.Flags().Lookup("owner"))
	_ = viper.BindPFlag("token", cmd.Flags().Lookup("token"))
	_ = viper.BindPFlag("packages", cmd.Flags().Lookup("packages"))
	_ = viper.BindPFlag("page_size", cmd.Flags().Lookup("page-size"))
	_ = viper.BindPFlag("api_url", cmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("http_timeout_sec", cmd.Flags().Lookup("http-timeout"))

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, opts listOptions) error {
	service := newAppService()
	result, err := service.ListVersions(ctx, app.ListRequest{
		Owner:          resolveString(cmd, opts.Owner, "owner", "owner"),
		Token:          resolveString(cmd, opts.Token, "token", "token"),
		Packages:       splitPackages(resolveString(cmd, opts.Packages, "packages", "packages")),
		PageSize:       resolveInt(cmd, opts.PageSize, "page_size", "page-size"),
		APIBaseURL:     resolveString(cmd, opts.APIURL, "api_url", "api-url"),
		HTTPTimeoutSec: resolveInt(cmd, opts.HTTPTimeoutSec, "http_timeout_sec", "http-timeout"),
	})
	if err != nil {
		return err
	}
	for _, version := range result.Versions {
		status := "candidate"
		if version.Protected {
			status = "protected"
		}
		tags := strings.Join(version.Tags, ",")
		if tags == "" {
			tags = "-"
		}
		fmt.Printf("%s\t%d\t%s\t%s\n", version.Package, version.ID, status, tags)
	}
	return nil
}
