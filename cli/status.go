package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory store statistics",
	Long:  `Display row counts for the relational store and the vector index backend status.`,
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	tables, err := rt.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}
	vector := rt.index.Status(ctx)

	if statusJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"tables": tables,
			"vector": vector,
		})
	}

	fmt.Println("Tables:")
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-14s %d\n", name, tables[name])
	}

	fmt.Println("Vector index:")
	keys := make([]string, 0, len(vector))
	for key := range vector {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %-14s %v\n", key, vector[key])
	}
	return nil
}
