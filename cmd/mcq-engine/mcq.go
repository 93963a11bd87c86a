// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mcq-engine/internal/workflow"
	"github.com/pdiddy/mcq-engine/pkg/types"
)

var mcqCmd = &cobra.Command{
	Use:   "mcq",
	Short: "Draft, review, and manage multiple-choice questions",
}

var mcqDraftCmd = &cobra.Command{
	Use:   "draft <source-id>",
	Short: "Interactively draft a question for a pending source",
	Long: `Draft generates a question proposal for a pending source and opens a
review session. At the prompt:

  a             accept the draft (commits triplets + question, dequeues)
  r <feedback>  regenerate the draft applying the feedback
  v <prompt>    accept with an overriding visual prompt
  q             quit without accepting

Drafts live only for the session; quitting discards the proposal.`,
	RunE: runMCQDraft,
}

var mcqRegenerateCmd = &cobra.Command{
	Use:   "regenerate <mcq-id>",
	Short: "Regenerate an existing question from its triplet and source",
	RunE:  runMCQRegenerate,
}

var mcqApproveCmd = &cobra.Command{
	Use:   "approve <mcq-id>...",
	Short: "Mark questions approved",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMCQStatus(args, types.MCQApproved)
	},
}

var mcqRejectCmd = &cobra.Command{
	Use:   "reject <mcq-id>...",
	Short: "Mark questions rejected",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMCQStatus(args, types.MCQRejected)
	},
}

var mcqSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored questions by source or question text",
	RunE:  runMCQSearch,
}

var mcqImageCmd = &cobra.Command{
	Use:   "image <mcq-id>",
	Short: "Render a question's visual prompt to an image file",
	RunE:  runMCQImage,
}

func init() {
	mcqImageCmd.Flags().String("size", "", "image size (WxH pixels or W:H ratio)")
	mcqImageCmd.Flags().String("prompt", "", "override the stored visual prompt")

	mcqCmd.AddCommand(mcqDraftCmd)
	mcqCmd.AddCommand(mcqRegenerateCmd)
	mcqCmd.AddCommand(mcqApproveCmd)
	mcqCmd.AddCommand(mcqRejectCmd)
	mcqCmd.AddCommand(mcqSearchCmd)
	mcqCmd.AddCommand(mcqImageCmd)
	rootCmd.AddCommand(mcqCmd)
}

func runMCQDraft(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide exactly one source ID")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	src, err := store.SourceByExternalID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("source %s: %w", args[0], err)
	}

	pending, err := store.IsPending(ctx, src.ID)
	if err != nil {
		return err
	}
	if !pending {
		return fmt.Errorf("source %s is not in the pending queue; ingest it first", src.SourceID)
	}

	coord := newCoordinator(store)

	draft, err := coord.GenerateDraft(ctx, src.ID)
	if err != nil {
		return err
	}
	printDraft(draft)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n[a]ccept, [r <feedback>] refine, [v <prompt>] accept with visual, [q]uit > ")
		if !scanner.Scan() {
			fmt.Println("\nDraft discarded.")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		verb, rest, _ := strings.Cut(line, " ")

		switch verb {
		case "a", "v":
			override := ""
			if verb == "v" {
				override = strings.TrimSpace(rest)
			}
			rec, err := coord.AcceptDraft(ctx, src.ID, override)
			if err != nil {
				fmt.Fprintf(os.Stderr, "accept failed: %v\n", err)
				continue
			}
			fmt.Printf("accepted as MCQ %d; %s removed from pending queue\n", rec.ID, src.SourceID)
			return nil
		case "r":
			feedback := strings.TrimSpace(rest)
			if feedback == "" {
				fmt.Fprintln(os.Stderr, "provide feedback after r")
				continue
			}
			draft, err = coord.RefineDraft(ctx, src.ID, feedback)
			if err != nil {
				fmt.Fprintf(os.Stderr, "refine failed: %v\n", err)
				continue
			}
			printDraft(draft)
		case "q":
			fmt.Println("Draft discarded.")
			return nil
		default:
			fmt.Fprintln(os.Stderr, "unknown command")
		}
	}
}

func printDraft(draft *workflow.Draft) {
	p := draft.Payload
	fmt.Printf("\n--- draft %s ---\n", draft.ID)
	if p.Stem != "" {
		fmt.Printf("\n%s\n", p.Stem)
	}
	fmt.Printf("\n%s\n\n", p.Question)
	for i, opt := range p.Options {
		marker := " "
		if i == p.CorrectOption {
			marker = "*"
		}
		fmt.Printf("  %s %c) %s\n", marker, 'A'+rune(i), opt)
	}
	if len(p.Triplets) > 0 {
		fmt.Println("\nTriplets:")
		for _, t := range p.Triplets {
			fmt.Printf("  %s %s %s [%s]\n", t.Subject, t.Action, t.Object, t.Relation)
		}
	}
	if p.VisualPrompt != "" {
		fmt.Printf("\nVisual: %s\n", p.VisualPrompt)
	}
}

func runMCQRegenerate(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide exactly one MCQ ID")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid MCQ ID %q", args[0])
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	coord := newCoordinator(store)
	rec, err := coord.Regenerate(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Printf("regenerated MCQ %d: %s\n", rec.ID, rec.Question)
	return nil
}

func setMCQStatus(args []string, status types.MCQStatus) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more MCQ IDs")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MCQ ID %q", arg)
		}
		found, err := store.SetMCQStatus(ctx, id, status)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("MCQ %d not found", id)
		}
		fmt.Printf("MCQ %d → %s\n", id, status)
	}
	return nil
}

func runMCQSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	hits, err := store.SearchMCQs(context.Background(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No questions found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-6s  %-9s  %-16s  %s\n", "ID", "Status", "Source", "Question")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, h := range hits {
		question := h.Question
		if len(question) > 60 {
			question = question[:57] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-6d  %-9s  %-16s  %s\n", h.ID, h.Status, h.SourceExternalID, question)
	}
	fmt.Fprintf(os.Stdout, "\n%d questions\n", len(hits))
	return nil
}

func runMCQImage(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide exactly one MCQ ID")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid MCQ ID %q", args[0])
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	rec, err := store.MCQ(ctx, id)
	if err != nil {
		return err
	}

	prompt, _ := cmd.Flags().GetString("prompt")
	if prompt == "" {
		prompt = rec.VisualPrompt
	}
	if prompt == "" {
		return fmt.Errorf("MCQ %d has no visual prompt; provide one with --prompt", id)
	}

	cfg := imageConfig()
	size, _ := cmd.Flags().GetString("size")
	if size == "" {
		size = cfg.Size
	}

	data, err := newImageBackend(cfg).GenerateImage(ctx, prompt, size)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}
	outPath := filepath.Join(cfg.MediaDir, fmt.Sprintf("mcq-%d.png", id))
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	if prompt != rec.VisualPrompt {
		if err := store.AttachVisual(ctx, id, prompt, ""); err != nil {
			return err
		}
	}

	fmt.Printf("wrote %s (%d bytes)\n", outPath, len(data))
	return nil
}
