package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"partrec/internal"
	"partrec/internal/config"
	"partrec/internal/pipeline"
	"partrec/internal/storage"
	"partrec/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "ingest:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		side := fs.String("side", "", "store|supplier")
		file := fs.String("file", "", "input xlsx path")
		project := fs.String("project", "", "project name (optional)")
		_ = fs.Parse(os.Args[2:])
		if *file == "" || (*side != "store" && *side != "supplier") {
			must(fmt.Errorf("--file and --side=store|supplier are required"))
		}

		var projectID *int
		if strings.TrimSpace(*project) != "" {
			id, err := db.UpsertProject(*project)
			must(err)
			projectID = &id
		}
		records, err := pipeline.ParseRecordsXLSX(*file, projectID)
		must(err)
		var inserted int
		if *side == "store" {
			inserted, err = db.InsertStoreItems(records)
		} else {
			inserted, err = db.InsertSupplierItems(records)
		}
		must(err)
		fmt.Printf("ingest done side=%s parsed=%d inserted=%d\n", *side, len(records), inserted)

	case "match:batch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		run := fs.String("run", "", "run id (new one generated if empty)")
		offset := fs.Int("offset", 0, "batch offset")
		limit := fs.Int("limit", 0, "batch size (default from config)")
		project := fs.Int("project", 0, "project id (0 = all)")
		_ = fs.Parse(os.Args[2:])

		runID := *run
		if runID == "" {
			runID = pipeline.NewRunID()
		}
		orchestrator := pipeline.NewOrchestrator(db, cfg)
		result, err := orchestrator.RunBatch(context.Background(), runID, projectIDArg(*project), *offset, *limit)
		must(err)
		printBatch(result)

	case "match:run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		project := fs.Int("project", 0, "project id (0 = all)")
		_ = fs.Parse(os.Args[2:])

		runID := pipeline.NewRunID()
		orchestrator := pipeline.NewOrchestrator(db, cfg)
		results, err := orchestrator.RunAll(context.Background(), runID, projectIDArg(*project))
		must(err)
		totalCandidates := 0
		for _, r := range results {
			totalCandidates += len(r.Candidates)
		}
		fmt.Printf("run complete run=%s batches=%d candidates=%d\n", runID, len(results), totalCandidates)

	case "score:pair":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		storePart := fs.String("store", "", "store part number")
		supplierPart := fs.String("supplier", "", "supplier part number")
		storeCat := fs.String("storeCategory", "", "store category")
		supplierCat := fs.String("supplierCategory", "", "supplier category")
		project := fs.Int("project", 0, "project id (0 = none)")
		_ = fs.Parse(os.Args[2:])
		if *storePart == "" || *supplierPart == "" {
			must(fmt.Errorf("--store and --supplier are required"))
		}

		accepted, err := db.ListMatchHistory(internal.HistoryAccepted)
		must(err)
		rejected, err := db.ListMatchHistory(internal.HistoryRejected)
		must(err)
		rules, err := db.ListMasterRules()
		must(err)

		scorer := pipeline.NewScorer(accepted, rejected, rules)
		result := scorer.CalculateMatchScore(pipeline.ScoreInput{
			StorePartNumber:    *storePart,
			SupplierPartNumber: *supplierPart,
			StoreCategory:      optionalArg(*storeCat),
			SupplierCategory:   optionalArg(*supplierCat),
			ProjectID:          projectIDArg(*project),
		})
		fmt.Printf("score=%.4f reason=%s\n", result.Score, result.Reason)

	case "review:decide":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		candidate := fs.Int("candidate", 0, "candidate id")
		action := fs.String("action", "", "approve|reject|correct")
		corrected := fs.String("corrected", "", "corrected part number (for correct)")
		project := fs.Int("project", 0, "project id (0 = none)")
		_ = fs.Parse(os.Args[2:])
		if *candidate == 0 || *action == "" {
			must(fmt.Errorf("--candidate and --action are required"))
		}

		learner := pipeline.NewLearner(db, cfg)
		rule, err := learner.LearnFromDecision(internal.ReviewDecision{
			CandidateID:   *candidate,
			Action:        internal.DecisionAction(*action),
			CorrectedPart: optionalArg(*corrected),
			ProjectID:     projectIDArg(*project),
		})
		must(err)
		fmt.Printf("decision recorded candidate=%d rule=%d type=%s\n", *candidate, rule.ID, rule.RuleType)

		if internal.DecisionAction(*action) == internal.DecisionApprove {
			suggestion, err := learner.GenerateBulkApprovalSuggestion(*candidate)
			must(err)
			if suggestion != nil {
				fmt.Printf("bulk approval available: %d pending candidates share signature %s (preview %v)\n",
					suggestion.Count, suggestion.Signature, suggestion.PreviewIDs)
			}
		}

	case "rules:detect":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		min := fs.Int("min", cfg.PatternMinOccurrences, "minimum occurrences")
		_ = fs.Parse(os.Args[2:])

		approved, err := db.ListPairsByStatus(internal.StatusApproved)
		must(err)
		suggestions := pipeline.DetectPatterns(approved, *min)
		if len(suggestions) == 0 {
			fmt.Println("no recurring patterns found")
			return
		}
		for _, s := range suggestions {
			scope := string(s.Scope)
			if s.LineCode != nil {
				scope += ":" + *s.LineCode
			}
			fmt.Printf("pattern %s occurrences=%d scope=%s confidence=%.2f (%s)\n",
				s.Signature, s.Occurrences, scope, s.SuggestedConf, s.Description)
		}

	case "vendor:resolve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		line := fs.String("line", "", "supplier line code")
		category := fs.String("category", "", "category")
		subcategory := fs.String("subcategory", "", "subcategory")
		_ = fs.Parse(os.Args[2:])
		if *line == "" {
			must(fmt.Errorf("--line is required"))
		}

		rules, err := db.ListVendorActionRulesByLineCodes([]string{*line})
		must(err)
		resolver := pipeline.NewVendorResolver(rules)
		action := resolver.Resolve(util.StringPtr(*line), optionalArg(*category), optionalArg(*subcategory))
		fmt.Printf("action=%s\n", action)

	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		run := fs.String("run", "", "run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *run == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--run and --out are required"))
		}

		rows, err := db.GetExportRows(*run)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for run=%s", *run))
		}
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)

	default:
		usage()
		os.Exit(1)
	}
}

func projectIDArg(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalArg(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func printBatch(result internal.BatchResult) {
	fmt.Printf("batch done run=%s candidates=%d processed=%d/%d hasMore=%v nextOffset=%d\n",
		result.RunID, len(result.Candidates), result.Progress.Processed, result.Progress.Total,
		result.Progress.HasMore, result.Progress.NextOffset)
	for _, s := range result.Stages {
		fmt.Printf("  stage %d: items=%d matches=%d rate=%.2f avgConfidence=%.3f timeMs=%.0f\n",
			s.StageNumber, s.ItemsProcessed, s.MatchesFound, s.MatchRate, s.AvgConfidence, s.ProcessingTimeMs)
	}
	for method, count := range result.CountsByMethod {
		fmt.Printf("  method %s: %d\n", method, count)
	}
}

func usage() {
	fmt.Println("usage: partrec <command>")
	fmt.Println("commands:")
	fmt.Println("  ingest:xlsx --side=store|supplier --file=parts.xlsx [--project=name]")
	fmt.Println("  match:batch [--run=...] [--offset=0] [--limit=100] [--project=0]")
	fmt.Println("  match:run [--project=0]")
	fmt.Println("  score:pair --store=... --supplier=... [--storeCategory=...] [--supplierCategory=...]")
	fmt.Println("  review:decide --candidate=1 --action=approve|reject|correct [--corrected=...]")
	fmt.Println("  rules:detect [--min=3]")
	fmt.Println("  vendor:resolve --line=GATES [--category=belts] [--subcategory=V-belt]")
	fmt.Println("  export:xlsx --run=... --out=./out/candidates.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
