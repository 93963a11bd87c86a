// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process [source-id...]",
	Short: "Run extraction, classification, and generation for sources",
	Long: `Process runs the automated pipeline for each named source: triplets
are extracted and classified, and a question is generated for every
accepted triplet that does not have one yet. With --all, every source
in the pending queue is processed. Sources stay in the queue; only
accepting a draft removes them.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().Bool("all", false, "process every pending source")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if len(args) == 0 && !all {
		return fmt.Errorf("provide source IDs or --all")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	var sources []*types.Source
	if all {
		entries, err := store.AllPending(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			src, err := store.Source(ctx, e.SourceID)
			if err != nil {
				return err
			}
			sources = append(sources, src)
		}
	} else {
		for _, id := range args {
			src, err := store.SourceByExternalID(ctx, id)
			if err != nil {
				return fmt.Errorf("source %s: %w", id, err)
			}
			sources = append(sources, src)
		}
	}

	if len(sources) == 0 {
		fmt.Println("Nothing to process.")
		return nil
	}

	coord := newCoordinator(store)
	results, err := coord.ProcessSources(ctx, sources, os.Stdout)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.HasFailures() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d source(s) had failures", failed)
	}
	return nil
}
