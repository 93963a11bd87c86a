// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [keywords...]",
	Short: "Search PubMed for candidate articles",
	Long: `Search queries PubMed E-utilities for articles matching the given
keywords and prints PMID, title, authors, and year for each hit. Use
"ingest pubmed <pmid>" to pull an article into the review queue.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide search keywords")
	}

	client := pubmedClient()
	articles, err := client.Search(context.Background(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	}

	if len(articles) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-12s  %-60s  %-30s  %s\n", "PMID", "Title", "Authors", "Year")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 112))
	for _, a := range articles {
		title := a.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		authors := a.Authors
		if len(authors) > 30 {
			authors = authors[:27] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-12s  %-60s  %-30s  %s\n", a.PMID, title, authors, a.Year)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(articles))
	return nil
}
