package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/smallnest/murmur/memory"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search conversational memory",
	Long:  `Search stored atoms, episodes and pins by semantic similarity, with hybrid reranking by recency and salience.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var (
	searchSession  string
	searchKind     string
	searchK        int
	searchDays     int
	searchNoRerank bool
	searchJSON     bool
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&searchSession, "session", "", "Restrict to one session")
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "Restrict to a kind (atom, episode, pin)")
	searchCmd.Flags().IntVar(&searchK, "k", 8, "Number of results")
	searchCmd.Flags().IntVar(&searchDays, "days", 14, "Day window, 0 for unlimited")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "Skip hybrid reranking")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	results, err := rt.searcher.Search(ctx, memory.SearchRequest{
		Query:     args[0],
		SessionID: searchSession,
		Kind:      searchKind,
		K:         searchK,
		Days:      searchDays,
		Rerank:    !searchNoRerank,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}
	for i, result := range results {
		fmt.Printf("%2d. [%s] %.3f  %s\n", i+1, result.Kind, result.Score, result.Text)
	}
	return nil
}
