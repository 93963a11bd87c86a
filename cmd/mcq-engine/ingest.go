// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mcq-engine/internal/pdftext"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register sources and queue them for review",
	Long: `Ingest registers a source in the knowledge base and adds it to the
pending review queue. PDF files have their text extracted locally;
PubMed articles are fetched from E-utilities. Re-ingesting a known
source is a no-op beyond re-queueing it.`,
}

var ingestPDFCmd = &cobra.Command{
	Use:   "pdf <file>...",
	Short: "Ingest local PDF files",
	RunE:  runIngestPDF,
}

var ingestPubMedCmd = &cobra.Command{
	Use:   "pubmed <pmid>...",
	Short: "Ingest PubMed articles by PMID",
	RunE:  runIngestPubMed,
}

func init() {
	ingestCmd.AddCommand(ingestPDFCmd)
	ingestCmd.AddCommand(ingestPubMedCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestPDF(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more PDF files")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, path := range args {
		text, err := pdftext.ExtractFile(path)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", path, err)
		}

		src, created, err := store.RegisterPDF(ctx, filepath.Base(path), text)
		if err != nil {
			return err
		}
		if err := store.Enqueue(ctx, src.ID); err != nil {
			return err
		}

		if created {
			fmt.Printf("registered %s as %s (%d chars), queued for review\n", filepath.Base(path), src.SourceID, len(text))
		} else {
			fmt.Printf("%s already registered as %s, re-queued for review\n", filepath.Base(path), src.SourceID)
		}
	}
	return nil
}

func runIngestPubMed(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more PMIDs")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	client := pubmedClient()
	ctx := context.Background()
	for _, pmid := range args {
		article, err := client.FetchArticle(ctx, pmid)
		if err != nil {
			return err
		}

		src, created, err := store.RegisterArticle(ctx, article)
		if err != nil {
			return err
		}
		if err := store.Enqueue(ctx, src.ID); err != nil {
			return err
		}

		if created {
			fmt.Printf("registered %s: %s, queued for review\n", src.SourceID, src.Title)
		} else {
			fmt.Printf("%s already registered, re-queued for review\n", src.SourceID)
		}
	}
	return nil
}
