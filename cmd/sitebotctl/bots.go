package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/sitebot/internal/app"
	"github.com/liliang-cn/sitebot/internal/domain"
)

var ownerID string

var createCmd = &cobra.Command{
	Use:   "create <url>",
	Short: "Create a bot for a website, or show the owner's existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			bot, created, err := a.Bots.Create(cmd.Context(), ownerID, args[0])
			if bot != nil {
				verb := "existing"
				if created {
					verb = "created"
				}
				printBot(cmd, verb, bot)
			}
			return err
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <bot_id>",
	Short: "Re-crawl a bot's website and rebuild its index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			bot, err := a.Bots.Refresh(cmd.Context(), ownerID, args[0])
			if bot != nil {
				printBot(cmd, "refreshed", bot)
			}
			return err
		})
	},
}

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask <bot_id> <question>",
	Short: "Ask a bot a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			resp, err := a.Chat.Ask(cmd.Context(), args[0], &domain.ChatRequest{
				SessionID: askSession,
				Message:   strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			printf(cmd, "%s\n\n", resp.Answer)
			for i, s := range resp.SourceChunks {
				printf(cmd, "[%d] %.3f %s\n", i+1, s.Score, s.PageURL)
			}
			return nil
		})
	},
}

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "List the bots of an owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			bots, err := a.Bots.ListByOwner(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			for _, b := range bots {
				printf(cmd, "%s  %-10s  pages=%d chunks=%d messages=%d  %s\n",
					b.ID, b.Status, b.PageCount, b.ChunkCount, b.MessageCount, b.WebsiteURL)
			}
			return nil
		})
	},
}

func init() {
	createCmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID (required)")
	_ = createCmd.MarkFlagRequired("owner")
	refreshCmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID; empty skips the ownership check")
	botsCmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID (required)")
	_ = botsCmd.MarkFlagRequired("owner")
	askCmd.Flags().StringVar(&askSession, "session", "", "Session ID to continue")
}

func printBot(cmd *cobra.Command, verb string, bot *domain.Bot) {
	printf(cmd, "%s bot %s (%s) for %s\n", verb, bot.ID, bot.Status, bot.WebsiteURL)
	printf(cmd, "chat url: %s\n", domain.ChatURL(bot.ID))
	if bot.LastError != "" {
		printf(cmd, "last error: %s\n", bot.LastError)
	}
}
