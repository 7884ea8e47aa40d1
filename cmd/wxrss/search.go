package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wxrss/pkg/logger"
	"wxrss/pkg/resolver"
)

var searchLimit int

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search publishers by name",
	Long: `Searches the platform for published accounts matching the keyword and
prints the candidates in platform relevance order, including each
account's fakeid for use with 'wxrss fetch'.`,
	Example: `  wxrss search 阮一峰
  wxrss search datawhale --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	_, client, g, err := validSession(cmd.Context())
	if err != nil {
		return err
	}
	r := resolver.New(client, g, logger.GetLogger())

	limit := searchLimit
	if limit <= 0 {
		limit = cfg.Fetch.SearchLimit
	}

	candidates, err := r.Search(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No publishers found.")
		return nil
	}

	for i, c := range candidates {
		fmt.Printf("%d. %s\n", i+1, c.Nickname)
		fmt.Printf("   fakeid: %s\n", c.FakeID)
		if c.Alias != "" {
			fmt.Printf("   alias:  %s\n", c.Alias)
		}
		if c.Signature != "" {
			fmt.Printf("   intro:  %s\n", c.Signature)
		}
	}
	return nil
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "max results (default from config)")
	rootCmd.AddCommand(searchCmd)
}
