package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/sitebot/internal/chunker"
	"github.com/liliang-cn/sitebot/internal/cleaner"
	"github.com/liliang-cn/sitebot/internal/crawler"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <url>",
	Short: "Crawl a website and print the pages that would be indexed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		fetcher := crawler.New(cfg.Crawler)
		if c, ok := fetcher.(io.Closer); ok {
			defer c.Close()
		}
		frontier := crawler.NewFrontier(fetcher, crawler.Options{
			MaxPages:      cfg.Crawler.MaxPages,
			MinTextLength: cfg.Crawler.MinTextLength,
			Workers:       cfg.Crawler.Workers,
			Logger:        logger,
		})

		pages, err := frontier.Crawl(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, p := range pages {
			printf(cmd, "%8d  %s\n", len([]rune(p.Text)), p.URL)
		}
		printf(cmd, "%d pages\n", len(pages))
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean text read from stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		printf(cmd, "%s\n", cleaner.Clean(string(raw)))
		return nil
	},
}

var (
	chunkMaxWords int
	chunkOverlap  int
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Clean stdin and print its chunks, one per paragraph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		chunks := chunker.New(chunkMaxWords, chunkOverlap).Split(cleaner.Clean(string(raw)))
		printf(cmd, "%s\n", strings.Join(chunks, "\n\n"))
		return nil
	},
}

func init() {
	chunkCmd.Flags().IntVar(&chunkMaxWords, "max-words", chunker.DefaultMaxWords, "Maximum words per chunk")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", chunker.DefaultOverlapWords, "Words shared by neighbouring chunks")
}
