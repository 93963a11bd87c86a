// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mcq-engine/internal/provenance"
	"github.com/pdiddy/mcq-engine/pkg/types"
)

var tripletsCmd = &cobra.Command{
	Use:   "triplets",
	Short: "Review extracted knowledge triplets",
	Long: `Triplets lists and reviews the subject-action-object facts extracted
from sources. Accepted triplets feed question generation and the
knowledge export; rejected ones are kept but excluded from both.`,
}

var tripletsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored triplets",
	RunE:  runTripletsList,
}

var tripletsAcceptCmd = &cobra.Command{
	Use:   "accept <triplet-id>...",
	Short: "Mark triplets accepted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTripletStatus(args, types.TripletAccepted)
	},
}

var tripletsRejectCmd = &cobra.Command{
	Use:   "reject <triplet-id>...",
	Short: "Mark triplets rejected",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTripletStatus(args, types.TripletRejected)
	},
}

var tripletsDistractorsCmd = &cobra.Command{
	Use:   "distractors",
	Short: "Find accepted triplets usable as distractor material",
	Long: `Distractors queries accepted triplets that share a subject (same topic,
different predicate) or an action-object pair (same predicate, different
subject) with the fact being examined.`,
	RunE: runTripletsDistractors,
}

var tripletsVerifyCmd = &cobra.Command{
	Use:   "verify <triplet-id>",
	Short: "Check a triplet's evidence sentences against its source text",
	RunE:  runTripletsVerify,
}

func init() {
	tripletsListCmd.Flags().String("status", "", "filter by status: pending, accepted, rejected")
	tripletsListCmd.Flags().String("source", "", "filter by source ID (e.g. PMID:12345)")

	tripletsDistractorsCmd.Flags().String("subject", "", "match triplets with this subject")
	tripletsDistractorsCmd.Flags().String("action", "", "match triplets with this action (with --object)")
	tripletsDistractorsCmd.Flags().String("object", "", "match triplets with this object (with --action)")

	tripletsCmd.AddCommand(tripletsListCmd)
	tripletsCmd.AddCommand(tripletsAcceptCmd)
	tripletsCmd.AddCommand(tripletsRejectCmd)
	tripletsCmd.AddCommand(tripletsDistractorsCmd)
	tripletsCmd.AddCommand(tripletsVerifyCmd)
	rootCmd.AddCommand(tripletsCmd)
}

func runTripletsList(cmd *cobra.Command, args []string) error {
	statusFlag, _ := cmd.Flags().GetString("status")
	sourceFlag, _ := cmd.Flags().GetString("source")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	var sourceID int64
	if sourceFlag != "" {
		src, err := store.SourceByExternalID(ctx, sourceFlag)
		if err != nil {
			return fmt.Errorf("source %s: %w", sourceFlag, err)
		}
		sourceID = src.ID
	}

	status := types.TripletStatus(statusFlag)
	if statusFlag != "" && !types.ValidTripletStatus(status) {
		return fmt.Errorf("unknown status %q: use pending, accepted, or rejected", statusFlag)
	}

	triplets, err := store.ListTriplets(ctx, status, sourceID)
	if err != nil {
		return err
	}
	if len(triplets) == 0 {
		fmt.Println("No triplets found.")
		return nil
	}

	printTriplets(triplets)
	return nil
}

func setTripletStatus(args []string, status types.TripletStatus) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more triplet IDs")
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
			return fmt.Errorf("invalid triplet ID %q", arg)
		}
		found, err := store.SetTripletStatus(ctx, id, status)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("triplet %d not found", id)
		}
		fmt.Printf("triplet %d → %s\n", id, status)
	}
	return nil
}

func runTripletsDistractors(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	action, _ := cmd.Flags().GetString("action")
	object, _ := cmd.Flags().GetString("object")

	if subject == "" && (action == "" || object == "") {
		return fmt.Errorf("provide --subject, or --action together with --object")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	triplets, err := store.QueryDistractors(context.Background(), subject, action, object)
	if err != nil {
		return err
	}
	if len(triplets) == 0 {
		fmt.Println("No distractor candidates found.")
		return nil
	}

	printTriplets(triplets)
	return nil
}

func runTripletsVerify(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide exactly one triplet ID")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid triplet ID %q", args[0])
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	triplet, err := store.Triplet(ctx, id)
	if err != nil {
		return err
	}
	src, err := store.Source(ctx, triplet.SourceID)
	if err != nil {
		return err
	}

	report := provenance.Verify(triplet.ContextSentences, src.Content)
	for _, r := range report.Results {
		mark := "MISS"
		if r.Verified {
			mark = "ok"
		}
		sentence := r.Sentence
		if len(sentence) > 90 {
			sentence = sentence[:87] + "..."
		}
		fmt.Printf("%-4s  %s\n", mark, sentence)
	}
	fmt.Printf("\n%d of %d sentences verified against %s\n", report.VerifiedCount, report.TotalCount, src.SourceID)

	if !report.AllVerified {
		return fmt.Errorf("provenance check failed")
	}
	return nil
}

func printTriplets(triplets []*types.Triplet) {
	fmt.Fprintf(os.Stdout, "%-6s  %-9s  %-6s  %s\n", "ID", "Status", "Valid", "Fact")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, t := range triplets {
		fact := fmt.Sprintf("%s %s %s [%s]", t.Subject, t.Action, t.Object, t.Relation)
		if len(fact) > 75 {
			fact = fact[:72] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-6d  %-9s  %-6t  %s\n", t.ID, t.Status, t.SchemaValid, fact)
	}
	fmt.Fprintf(os.Stdout, "\n%d triplets\n", len(triplets))
}
