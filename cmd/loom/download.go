package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/corpusloom/loom/fetch"
	fetchs3 "github.com/corpusloom/loom/fetch/s3"
)

// byteCounter renders downloaded bytes without a percentage; release sizes
// are not known before the transfers start.
const byteCounter pb.ProgressBarTemplate = `{{counters . }} {{speed . }}`

// manifestEntry is one line of the download manifest: a release file, where
// it lands below the workspace, and optionally its published checksum.
type manifestEntry struct {
	URL  string `json:"url"`
	Dest string `json:"dest"`
	MD5  string `json:"md5,omitempty"`
}

func newDownloadCommand(a *app) *cobra.Command {
	var (
		manifestPath string
		concurrency  int
		rateLimit    int
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download dataset release files from a manifest",
		Long: `
Downloads every file listed in the manifest into the workspace. Destinations
are relative to the datasets directory. Files already present with a matching
checksum are skipped.
`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()

			data, err := os.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}

			var entries []manifestEntry
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("failed to parse manifest: %w", err)
			}

			items := make([]fetch.Item, 0, len(entries))
			needS3 := false

			for _, e := range entries {
				if strings.HasPrefix(e.URL, "s3://") {
					needS3 = true
				}

				items = append(items, fetch.Item{
					URL:  e.URL,
					Dest: filepath.Join(a.base, "datasets", filepath.FromSlash(e.Dest)),
					MD5:  e.MD5,
				})
			}

			fetchers := map[string]fetch.Fetcher{}

			if needS3 {
				cfg, err := config.LoadDefaultConfig(ctx)
				if err != nil {
					return fmt.Errorf("failed to load aws config: %w", err)
				}

				fetchers["s3"] = fetchs3.NewFetcher(awss3.NewFromConfig(cfg))
			}

			// Total size is unknown up front; show running counters only.
			bar := byteCounter.Start64(0)
			bar.Set(pb.Bytes, true)
			bar.SetWriter(a.stderr)

			defer bar.Finish()

			downloader := fetch.NewDownloader(func(o *fetch.Options) {
				o.Concurrency = concurrency
				o.RateLimit = rateLimit
				o.Fetchers = fetchers
				o.Logger = a.logger.Logger
				o.Progress = func(_ fetch.Item, n int64) {
					bar.Add64(n)
				}
			})

			return downloader.Download(ctx, items...)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&manifestPath, "manifest", "", "JSON manifest of release files to download")
	flags.IntVar(&concurrency, "concurrency", 4, "number of parallel downloads")
	flags.IntVar(&rateLimit, "rate-limit", 0, "download rate limit in bytes per second, 0 for unlimited")

	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
