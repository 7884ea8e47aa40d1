package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wxrss/internal/manager"
	"wxrss/pkg/content"
	"wxrss/pkg/fetcher"
	"wxrss/pkg/logger"
	"wxrss/pkg/resolver"
)

var (
	feedsAddFakeID  string
	feedsCount      int
	feedsCntContent bool
)

// feedsCmd represents the feeds command
var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage the subscription list and fetch all of it",
	Long: `The subscription list is a JSON file of publisher names. 'feeds update'
fetches every subscription in turn, resolving missing fakeids on the
way, and writes one feed file per publisher under the output
directory.`,
}

var feedsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Subscribe to a publisher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(nil, nil)
		if err != nil {
			return err
		}
		if err := m.Add(args[0], feedsAddFakeID); err != nil {
			return err
		}
		fmt.Println("Subscribed to:", args[0])
		return nil
	},
}

var feedsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Unsubscribe from a publisher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(nil, nil)
		if err != nil {
			return err
		}
		if err := m.Remove(args[0]); err != nil {
			return err
		}
		fmt.Println("Unsubscribed from:", args[0])
		return nil
	},
}

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(nil, nil)
		if err != nil {
			return err
		}
		feeds := m.List()
		if len(feeds) == 0 {
			fmt.Println("No subscriptions. Add one with 'wxrss feeds add <name>'.")
			return nil
		}
		for _, f := range feeds {
			if f.FakeID != "" {
				fmt.Printf("  %s (%s)\n", f.Name, f.FakeID)
			} else {
				fmt.Printf("  %s\n", f.Name)
			}
		}
		return nil
	},
}

var feedsUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch articles for every subscription",
	Args:  cobra.NoArgs,
	RunE:  runFeedsUpdate,
}

func runFeedsUpdate(cmd *cobra.Command, args []string) error {
	_, client, g, err := validSession(cmd.Context())
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	r := resolver.New(client, g, log)
	extractor := content.NewExtractor(cfg.Browser.Timeout, log)
	f := fetcher.New(client, g, extractor, cfg.Fetch.PageSize, log)

	m, err := newManager(r, f)
	if err != nil {
		return err
	}
	if len(m.List()) == 0 {
		fmt.Println("No subscriptions. Add one with 'wxrss feeds add <name>'.")
		return nil
	}

	count := feedsCount
	if count <= 0 {
		count = cfg.Fetch.ArticleCount
	}
	withContent := feedsCntContent || cfg.Fetch.WithContent

	results := m.FetchAll(cmd.Context(), count, withContent)

	succeeded := 0
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("  FAIL %s: %v\n", res.Name, res.Err)
			continue
		}
		succeeded++
		fmt.Printf("  OK   %s: %d articles -> %s\n", res.Name, res.Articles, res.OutputFile)
		for _, w := range res.Warnings {
			fmt.Printf("       warning: no content for %q: %v\n", w.Title, w.Err)
		}
	}
	fmt.Printf("Done: %d/%d succeeded.\n", succeeded, len(results))
	return nil
}

// newManager builds the subscription manager. resolver and fetcher may be
// nil for list-only operations.
func newManager(r manager.Searcher, f manager.ArticleFetcher) (*manager.Manager, error) {
	return manager.New(cfg.Output.FeedsFile, cfg.Output.Directory, r, f, logger.GetLogger())
}

func init() {
	feedsAddCmd.Flags().StringVar(&feedsAddFakeID, "fakeid", "", "publisher fakeid, skips later resolution")
	feedsUpdateCmd.Flags().IntVarP(&feedsCount, "count", "n", 0, "articles per subscription (default from config)")
	feedsUpdateCmd.Flags().BoolVar(&feedsCntContent, "content", false, "download article bodies")

	feedsCmd.AddCommand(feedsAddCmd)
	feedsCmd.AddCommand(feedsRemoveCmd)
	feedsCmd.AddCommand(feedsListCmd)
	feedsCmd.AddCommand(feedsUpdateCmd)
	rootCmd.AddCommand(feedsCmd)
}
