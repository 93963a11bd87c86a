// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and manage the pending review queue",
}

var sourcesPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List sources waiting for review, newest first",
	RunE:  runSourcesPending,
}

var sourcesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the pending review queue",
	RunE:  runSourcesClear,
}

func init() {
	sourcesPendingCmd.Flags().Int("page", 1, "page of the queue to show")
	sourcesPendingCmd.Flags().Int("page-size", 0, "entries per page (0 = store default)")

	sourcesCmd.AddCommand(sourcesPendingCmd)
	sourcesCmd.AddCommand(sourcesClearCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesPending(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, served, total, err := store.ListPending(context.Background(), page, pageSize)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("Pending queue is empty.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-16s  %-60s  %s\n", "Source", "Title", "Queued")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, e := range entries {
		title := e.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-16s  %-60s  %s\n", e.ExternalID, title, e.QueuedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(os.Stdout, "\nPage %d of %d\n", served, total)
	return nil
}

func runSourcesClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ClearPending(context.Background()); err != nil {
		return err
	}
	fmt.Println("Pending queue cleared.")
	return nil
}
