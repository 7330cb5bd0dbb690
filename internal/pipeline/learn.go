package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"partrec/internal"
	"partrec/internal/config"
	"partrec/internal/storage"
	"partrec/internal/util"
)

const bulkPreviewSize = 10

type Learner struct {
	db  *storage.DB
	cfg config.Config
}

func NewLearner(db *storage.DB, cfg config.Config) *Learner {
	return &Learner{db: db, cfg: cfg}
}

// LearnFromDecision converts a reviewer's terminal decision into a durable
// master rule and a history row. An existing enabled rule for the same
// (store part, target part, type) is reused rather than duplicated.
func (l *Learner) LearnFromDecision(d internal.ReviewDecision) (internal.MasterRule, error) {
	pair, err := l.db.GetCandidatePair(d.CandidateID)
	if err != nil {
		return internal.MasterRule{}, err
	}
	if pair == nil {
		return internal.MasterRule{}, fmt.Errorf("candidate not found: id=%d", d.CandidateID)
	}

	var ruleType internal.MasterRuleType
	var targetPart string
	var status internal.CandidateStatus
	var historyKind internal.HistoryKind

	switch d.Action {
	case internal.DecisionApprove:
		ruleType = internal.RulePositiveMap
		targetPart = pair.SupplierPartNumber
		status = internal.StatusApproved
		historyKind = internal.HistoryAccepted
	case internal.DecisionReject:
		ruleType = internal.RuleNegativeBlock
		targetPart = pair.SupplierPartNumber
		status = internal.StatusRejected
		historyKind = internal.HistoryRejected
	case internal.DecisionCorrect:
		if d.CorrectedPart == nil || strings.TrimSpace(*d.CorrectedPart) == "" {
			return internal.MasterRule{}, fmt.Errorf("correct decision requires a corrected part number")
		}
		ruleType = internal.RulePositiveMap
		targetPart = *d.CorrectedPart
		status = internal.StatusCorrected
		historyKind = internal.HistoryAccepted
	default:
		return internal.MasterRule{}, fmt.Errorf("unsupported decision action: %s", d.Action)
	}

	if err := l.db.UpdateCandidateStatus(pair.Candidate.ID, status); err != nil {
		return internal.MasterRule{}, err
	}
	if err := l.db.InsertMatchHistory(historyKind, pair.StorePartNumber, targetPart, d.ProjectID); err != nil {
		return internal.MasterRule{}, err
	}

	existing, err := l.db.FindMasterRule(pair.StorePartNumber, &targetPart, ruleType)
	if err != nil {
		return internal.MasterRule{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	projectID := d.ProjectID
	scope := internal.ScopeGlobal
	if projectID != nil {
		exists, err := l.db.ProjectExists(*projectID)
		if err != nil || !exists {
			// The referenced project is gone; keep the rule, drop the reference.
			fmt.Printf("project %d not found, creating rule without project scope\n", *projectID)
			projectID = nil
		} else {
			scope = internal.ScopeProject
		}
	}

	rule := internal.MasterRule{
		StorePartNumber:    pair.StorePartNumber,
		SupplierPartNumber: &targetPart,
		RuleType:           ruleType,
		Scope:              scope,
		ProjectID:          projectID,
		Confidence:         1.0,
		Enabled:            true,
	}
	id, err := l.db.InsertMasterRule(rule)
	if err != nil {
		return internal.MasterRule{}, err
	}
	rule.ID = int(id)
	return rule, nil
}

// DetectPatterns groups accepted matches by transformation signature and
// reports the recurring ones as rule suggestions.
func DetectPatterns(pairs []internal.CandidatePair, minOccurrences int) []internal.PatternSuggestion {
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	type group struct {
		pairs []internal.CandidatePair
	}
	groups := map[string]*group{}
	order := []string{}

	for _, p := range pairs {
		sig := util.TransformationSignature(p.StorePartNumber, p.SupplierPartNumber)
		if sig == nil {
			continue
		}
		g, ok := groups[*sig]
		if !ok {
			g = &group{}
			groups[*sig] = g
			order = append(order, *sig)
		}
		g.pairs = append(g.pairs, p)
	}
	sort.Strings(order)

	out := []internal.PatternSuggestion{}
	for _, sig := range order {
		g := groups[sig]
		if len(g.pairs) < minOccurrences {
			continue
		}

		suggestion := internal.PatternSuggestion{
			Signature:     sig,
			Occurrences:   len(g.pairs),
			Description:   describeSignature(sig),
			Scope:         internal.PatternScopeGlobal,
			SuggestedConf: averageConfidence(g.pairs),
		}
		if line := sharedLineCode(g.pairs); line != nil {
			suggestion.Scope = internal.PatternScopeLineCode
			suggestion.LineCode = line
		}
		out = append(out, suggestion)
	}
	return out
}

// GenerateBulkApprovalSuggestion previews the pending candidates that share
// a just-approved candidate's transformation signature. Advisory only: it
// never applies anything.
func (l *Learner) GenerateBulkApprovalSuggestion(candidateID int) (*internal.BulkApprovalSuggestion, error) {
	pair, err := l.db.GetCandidatePair(candidateID)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, fmt.Errorf("candidate not found: id=%d", candidateID)
	}

	sig := util.TransformationSignature(pair.StorePartNumber, pair.SupplierPartNumber)
	if sig == nil {
		return nil, nil
	}

	pending, err := l.db.ListPairsByStatus(internal.StatusPending)
	if err != nil {
		return nil, err
	}

	matchingIDs := []int{}
	for _, p := range pending {
		if p.Candidate.ID == candidateID {
			continue
		}
		other := util.TransformationSignature(p.StorePartNumber, p.SupplierPartNumber)
		if other != nil && *other == *sig {
			matchingIDs = append(matchingIDs, p.Candidate.ID)
		}
	}
	if len(matchingIDs) < l.cfg.BulkApprovalMinCount {
		return nil, nil
	}

	preview := matchingIDs
	if len(preview) > bulkPreviewSize {
		preview = preview[:bulkPreviewSize]
	}
	return &internal.BulkApprovalSuggestion{
		Signature:    *sig,
		Count:        len(matchingIDs),
		PreviewIDs:   preview,
		ApprovedFrom: candidateID,
	}, nil
}

func sharedLineCode(pairs []internal.CandidatePair) *string {
	var shared *string
	for _, p := range pairs {
		norm := util.NormalizePart(p.StorePartNumber)
		line := norm.LineCode
		if line == nil && p.StoreLineCode != nil {
			line = util.StringPtr(util.Canonical(*p.StoreLineCode))
		}
		if line == nil {
			return nil
		}
		if shared == nil {
			shared = line
			continue
		}
		if *shared != *line {
			return nil
		}
	}
	return shared
}

func averageConfidence(pairs []internal.CandidatePair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pairs {
		sum += p.Candidate.Confidence
	}
	return sum / float64(len(pairs))
}

func describeSignature(sig string) string {
	switch sig {
	case "slash_to_dash":
		return "replace '/' with '-'"
	case "dash_to_slash":
		return "replace '-' with '/'"
	case "dot_to_dash":
		return "replace '.' with '-'"
	case "dash_to_dot":
		return "replace '-' with '.'"
	case "space_to_dash":
		return "replace spaces with '-'"
	case "remove_dash":
		return "remove '-'"
	case "remove_slash":
		return "remove '/'"
	case "remove_dot":
		return "remove '.'"
	case "remove_space":
		return "remove spaces"
	case "case_change":
		return "normalize letter case"
	default:
		return "punctuation variant"
	}
}
