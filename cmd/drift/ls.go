package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/config"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/remote/s3fs"
	"github.com/driftsync/drift/internal/ui"
)

var lsCmd = &cobra.Command{
	Use:   "ls s3://<bucket>/<path>",
	Short: "List the contents of a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func init() {
	lsCmd.Flags().String("region", "", "bucket region")
	lsCmd.Flags().String("endpoint", "", "custom S3 endpoint URL")
	lsCmd.Flags().Bool("path-style", false, "use path-style addressing (non-AWS endpoints)")
}

func runLs(cmd *cobra.Command, args []string) error {
	bucket, remotePath, err := splitRemote(args[0])
	if err != nil {
		return err
	}

	region, _ := cmd.Flags().GetString("region")      //nolint:errcheck // flag name is hardcoded
	endpoint, _ := cmd.Flags().GetString("endpoint")  //nolint:errcheck // flag name is hardcoded
	pathStyle, _ := cmd.Flags().GetBool("path-style") //nolint:errcheck // flag name is hardcoded

	cfg, cfgErr := config.Load()
	if cfgErr == nil {
		if !cmd.Flags().Changed("region") && cfg.Remote.Region != nil {
			region = *cfg.Remote.Region
		}
		if !cmd.Flags().Changed("endpoint") && cfg.Remote.Endpoint != nil {
			endpoint = *cfg.Remote.Endpoint
		}
		if !cmd.Flags().Changed("path-style") && cfg.Remote.PathStyle != nil {
			pathStyle = *cfg.Remote.PathStyle
		}
	}

	ctx := cmd.Context()
	store, err := s3fs.New(ctx, s3fs.Options{
		Bucket:    bucket,
		Region:    region,
		Endpoint:  endpoint,
		PathStyle: pathStyle,
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", args[0], err)
	}

	item, err := store.Resolve(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}

	switch it := item.(type) {
	case remote.File:
		fmt.Fprintf(os.Stdout, "%-12s  %s\n", ui.FormatBytes(it.Size()), it.Name())
	case remote.Dir:
		children, err := it.Children(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", args[0], err)
		}
		for _, child := range children {
			switch c := child.(type) {
			case remote.Dir:
				fmt.Fprintf(os.Stdout, "%-12s  %s/\n", "-", c.Name())
			case remote.File:
				fmt.Fprintf(os.Stdout, "%-12s  %s\n", ui.FormatBytes(c.Size()), c.Name())
			}
		}
	}
	return nil
}
