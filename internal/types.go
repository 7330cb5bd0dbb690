package internal

type MatchMethod string

const (
	MethodInterchange        MatchMethod = "interchange"
	MethodCanonical          MatchMethod = "canonical"
	MethodLineAndPart        MatchMethod = "line_and_part"
	MethodPartOnly           MatchMethod = "part_only"
	MethodPrefixStrip        MatchMethod = "prefix_strip"
	MethodAffixVariation     MatchMethod = "affix_variation"
	MethodTransformationRule MatchMethod = "transformation_rule"
	MethodSubstring          MatchMethod = "substring_containment"
	MethodFuzzy              MatchMethod = "fuzzy"
)

type CandidateStatus string

const (
	StatusPending   CandidateStatus = "PENDING"
	StatusApproved  CandidateStatus = "APPROVED"
	StatusRejected  CandidateStatus = "REJECTED"
	StatusCorrected CandidateStatus = "CORRECTED"
)

const (
	StageGlobal        = 0
	StageDeterministic = 1
	StageFuzzy         = 2
)

// PartRecord is one side of a match: either a store inventory item or a
// supplier catalog item. Nullable columns are pointers, matching storage.
type PartRecord struct {
	ID          int
	ProjectID   *int
	PartNumber  string
	LineCode    *string
	Description *string
	Category    *string
	Subcategory *string
	Cost        *float64
}

// NormalizedPart holds the comparable forms of a raw part number.
type NormalizedPart struct {
	Original         string
	LineCode         *string
	ManufacturerPart *string
	Canonical        string
	NormalizedLower  string
}

type InterchangeMapping struct {
	ID         int
	SourceSku  string
	TargetSku  string
	Confidence float64
	ProjectID  *int
}

type LineCodeTranslation struct {
	ID             int
	SourceLineCode string
	TargetLineCode string
	Priority       int
	ProjectID      *int
}

type PartNumberInterchange struct {
	ID               int
	SourceLineCode   string
	SourcePartNumber string
	TargetLineCode   string
	TargetPartNumber string
	Priority         int
}

type TransformationRule struct {
	ID          int
	FromPattern string
	ToPattern   string
	RuleType    string
	Confidence  float64
	ProjectID   *int
	Active      bool
}

const RuleTypePunctuation = "punctuation"

type MasterRuleType string

const (
	RulePositiveMap   MasterRuleType = "POSITIVE_MAP"
	RuleNegativeBlock MasterRuleType = "NEGATIVE_BLOCK"
)

type MasterRuleScope string

const (
	ScopeGlobal  MasterRuleScope = "GLOBAL"
	ScopeProject MasterRuleScope = "PROJECT"
)

type MasterRule struct {
	ID                 int
	StorePartNumber    string
	SupplierPartNumber *string
	RuleType           MasterRuleType
	Scope              MasterRuleScope
	ProjectID          *int
	Confidence         float64
	Enabled            bool
}

type VendorAction string

const (
	ActionNone          VendorAction = "NONE"
	ActionLift          VendorAction = "LIFT"
	ActionRebox         VendorAction = "REBOX"
	ActionContactVendor VendorAction = "CONTACT_VENDOR"
	ActionDiscard       VendorAction = "DISCARD"
)

// VendorActionRule tags matches with an operational action. CategoryPattern
// and SubcategoryPattern are either an exact string or the wildcard "*".
type VendorActionRule struct {
	ID                 int
	SupplierLineCode   string
	CategoryPattern    string
	SubcategoryPattern string
	Action             VendorAction
	ProjectID          *int
	Active             bool
}

type HistoryKind string

const (
	HistoryAccepted HistoryKind = "accepted"
	HistoryRejected HistoryKind = "rejected"
)

type MatchHistory struct {
	StorePartNumber    string
	SupplierPartNumber string
	ProjectID          *int
}

type MatchFeatures struct {
	PartSimilarity float64  `json:"partSimilarity"`
	DescSimilarity float64  `json:"descSimilarity"`
	CostSimilarity *float64 `json:"costSimilarity,omitempty"`
	CategoryMatch  *float64 `json:"categoryMatch,omitempty"`
	Signature      *string  `json:"signature,omitempty"`
	AppliedRule    *string  `json:"appliedRule,omitempty"`
	StrippedPrefix *string  `json:"strippedPrefix,omitempty"`
	TranslatedLine *string  `json:"translatedLine,omitempty"`
	Reason         string   `json:"reason"`
	RunnerUpID     *int     `json:"runnerUpId,omitempty"`
	RunnerUpScore  *float64 `json:"runnerUpScore,omitempty"`
}

type MatchCandidate struct {
	ID             int
	RunID          string
	StoreItemID    int
	SupplierItemID int
	Method         MatchMethod
	Confidence     float64
	MatchStage     int
	Features       MatchFeatures
	VendorAction   VendorAction
	Status         CandidateStatus
}

type StageMetrics struct {
	StageNumber      int     `json:"stageNumber"`
	ItemsProcessed   int     `json:"itemsProcessed"`
	MatchesFound     int     `json:"matchesFound"`
	MatchRate        float64 `json:"matchRate"`
	AvgConfidence    float64 `json:"avgConfidence"`
	ProcessingTimeMs float64 `json:"processingTimeMs"`
}

type BatchProgress struct {
	Processed  int  `json:"processed"`
	Total      int  `json:"total"`
	Remaining  int  `json:"remaining"`
	HasMore    bool `json:"hasMore"`
	NextOffset int  `json:"nextOffset"`
}

type BatchResult struct {
	RunID          string
	Candidates     []MatchCandidate
	CountsByMethod map[MatchMethod]int
	Stages         []StageMetrics
	Progress       BatchProgress
}

type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
	DecisionCorrect DecisionAction = "correct"
)

type ReviewDecision struct {
	CandidateID   int
	Action        DecisionAction
	CorrectedPart *string
	ProjectID     *int
}

// CandidatePair joins a candidate with the part numbers on both sides,
// for pattern detection and review surfaces.
type CandidatePair struct {
	Candidate          MatchCandidate
	StorePartNumber    string
	StoreLineCode      *string
	SupplierPartNumber string
	SupplierLineCode   *string
}

type PatternScope string

const (
	PatternScopeGlobal   PatternScope = "global"
	PatternScopeLineCode PatternScope = "line_code"
)

type PatternSuggestion struct {
	Signature     string
	Occurrences   int
	Description   string
	Scope         PatternScope
	LineCode      *string
	SuggestedConf float64
}

type BulkApprovalSuggestion struct {
	Signature    string
	Count        int
	PreviewIDs   []int
	ApprovedFrom int
}

type CandidateExportRow struct {
	CandidateID      int
	StoreItemID      int
	StorePartNumber  string
	StoreLineCode    *string
	StoreDescription *string
	StoreCost        *float64
	SupplierItemID   int
	SupplierPart     string
	SupplierLineCode *string
	SupplierDesc     *string
	SupplierCost     *float64
	Method           string
	MatchStage       int
	Confidence       float64
	VendorAction     string
	Status           string
	FeaturesJSON     string
	RunnerUpPart     *string
	RunnerUpScore    *float64
}
