// Package model defines the data types the Tree Extension Deep Query engine
// operates on: the document a topic is built from, the atomic short answers
// and keywords extracted from it, the questions and tree nodes constructed
// around them, and the resulting reasoning tree and trajectory log.
//
// Struct and enum shape follow the teacher's internal/model conventions
// (string-backed enums with a const block, json tags, pointer fields for
// optional values).
package model

import "time"

// ShortAnswerType classifies the kind of atomic fact a ShortAnswer captures.
type ShortAnswerType string

const (
	ShortAnswerProperNoun    ShortAnswerType = "proper_noun"
	ShortAnswerNumber        ShortAnswerType = "number"
	ShortAnswerDate          ShortAnswerType = "date"
	ShortAnswerLocation      ShortAnswerType = "location"
	ShortAnswerTechnicalTerm ShortAnswerType = "technical_term"
)

// QuestionType is the interrogative word a generated question must begin
// with. "how" is never a valid value — every producer of a Question must
// reject it (spec invariant: question_type != how).
type QuestionType string

const (
	QuestionWhat  QuestionType = "what"
	QuestionWhich QuestionType = "which"
	QuestionWho   QuestionType = "who"
	QuestionWhen  QuestionType = "when"
	QuestionWhere QuestionType = "where"
)

// ExtensionType labels how a TreeNode extends its parent.
type ExtensionType string

const (
	ExtensionRoot     ExtensionType = "root"
	ExtensionSeries   ExtensionType = "series"
	ExtensionParallel ExtensionType = "parallel"
)

// StepType classifies one TrajectoryRecord step.
type StepType string

const (
	StepGeneration StepType = "generation"
	StepValidation StepType = "validation"
	StepExtraction StepType = "extraction"
	StepSearch     StepType = "search"
	StepIntegration StepType = "integration"
	StepError      StepType = "error"
)

// Document is the immutable unit of input delivered by the external
// document loader. value_score is produced by document screening (an
// external collaborator per spec.md §1); the core only consumes it.
type Document struct {
	DocID      string  `json:"doc_id"`
	TopicID    string  `json:"topic_id"`
	Content    string  `json:"content"`
	ValueScore float64 `json:"value_score"`
}

// ShortAnswer is a candidate atomic, objectively verifiable fact proposed by
// the Short-Answer Extractor from a Document.
type ShortAnswer struct {
	Text       string          `json:"text"`
	Type       ShortAnswerType `json:"type"`
	Confidence float64         `json:"confidence"`
	SourceSpan string          `json:"source_span"`
}

// Question is a generated question anywhere in the tree: level 1 for the
// root, level > 1 for extensions.
//
// Invariant: QuestionType != "how" and Text ends with "?". ExpectedAnswer
// must never appear inside Text except as an unavoidable part of a
// proper-noun context (recorded via AnswerLeakException).
type Question struct {
	QuestionID          string       `json:"question_id"`
	Text                 string       `json:"text"`
	ExpectedAnswer       string       `json:"expected_answer"`
	QuestionType         QuestionType `json:"question_type"`
	AnswerType           ShortAnswerType `json:"answer_type"`
	Level                int          `json:"level"`
	ParentID             *string      `json:"parent_id,omitempty"`
	Keywords             []string     `json:"keywords,omitempty"`
	ValidationScore      float64      `json:"validation_score"`
	AnswerLeakException bool         `json:"answer_leak_exception,omitempty"`
}

// Keyword is extracted from the text of a parent question or answer by the
// Keyword Hierarchy Manager.
//
// Invariant: Text is drawn from ParentContext, is not a stopword, and is not
// identical to the parent's expected answer unless the parent is the root.
type Keyword struct {
	Text             string  `json:"text"`
	ParentContext    string  `json:"parent_context"`
	KeywordType      ShortAnswerType `json:"keyword_type"`
	SpecificityScore float64 `json:"specificity_score"`
	Confidence       float64 `json:"confidence"`
	Position         int     `json:"position"`
	// Essential records the Minimum Keyword Check outcome for this keyword:
	// true if removing it would make the remaining set insufficient to
	// uniquely identify the parent answer.
	Essential bool `json:"essential"`
}

// SearchResult is one ranked snippet returned by the Search Gateway.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Rank    int    `json:"rank"`
}

// ExtensionContext is the fused search context the Web-Search Extension
// Synthesizer produces for one (keyword, extension_type) pair.
type ExtensionContext struct {
	TargetKeyword   string         `json:"target_keyword"`
	SearchQuery     string         `json:"search_query"`
	Snippets        []SearchResult `json:"snippets"`
	SynthesizedText string         `json:"synthesized_text"`
	Confidence      float64        `json:"confidence"`
}

// ValidationScores bundles the three checks a TreeNode accumulates.
type ValidationScores struct {
	Hierarchy float64 `json:"hierarchy"`
	Shortcut  float64 `json:"shortcut"`
	DualModel float64 `json:"dual_model"`
}

// TreeNode is one node of a ReasoningTree.
//
// Invariants: the root has Depth=0, ParentNodeID=nil, ExtensionType=root;
// every other node has Depth = parent.Depth+1, 0 < Depth <= DEPTH_MAX, and
// Question.ExpectedAnswer equal to one element of parent.KeywordsUsed (the
// target keyword), matched under the Keyword Hierarchy Manager's variant
// rules.
type TreeNode struct {
	NodeID           string           `json:"node_id"`
	Question         Question         `json:"question"`
	ExtensionType     ExtensionType    `json:"extension_type"`
	Depth             int              `json:"depth"`
	ParentNodeID      *string          `json:"parent_node_id,omitempty"`
	KeywordsUsed      []string         `json:"keywords_used"`
	SearchContextID   *string          `json:"search_context_id,omitempty"`
	ValidationScores ValidationScores `json:"validation_scores"`
	WorkflowCompliant bool             `json:"workflow_compliant"`
}

// IntegratedQuery is the single composite question produced by the
// Tree-Level Integrator from a complete ReasoningTree.
type IntegratedQuery struct {
	Text               string   `json:"text"`
	RootAnswer         string   `json:"root_answer"`
	ReasoningPath      []string `json:"reasoning_path"`
	ComponentQuestions []string `json:"component_questions"`
	Confidence         float64  `json:"confidence"`
	ComplexityScore    int      `json:"complexity_score"`
}

// BranchCounts breaks tree size down by extension strategy, extending the
// exporter's stats payload the way the original prototype's
// get_framework_statistics did.
type BranchCounts struct {
	Series   int `json:"series"`
	Parallel int `json:"parallel"`
}

// TreeStats is the `stats{}` field of the exported ReasoningTree (spec.md §6).
type TreeStats struct {
	WebSearches  int          `json:"web_searches"`
	LLMCalls     int          `json:"llm_calls"`
	Depth        int          `json:"depth"`
	Size         int          `json:"size"`
	DurationMS   int64        `json:"duration_ms"`
	BranchCounts BranchCounts `json:"branch_counts"`
}

// ReasoningTree is the orchestrator's output for one document.
//
// Invariants: acyclic; exactly one root; every non-root node has its parent
// present in Nodes; IntegratedQuery is populated only when len(Nodes) > 1
// and the integrator's verification passed (otherwise it is nil).
type ReasoningTree struct {
	TreeID            int64                `json:"tree_id"`
	TopicID           string               `json:"topic_id"`
	RootNodeID        string               `json:"root_node_id"`
	Nodes             map[string]TreeNode  `json:"nodes"`
	KeywordHierarchy  map[int][]Keyword    `json:"keyword_hierarchy"`
	IntegratedQuery   *IntegratedQuery     `json:"integrated_query,omitempty"`
	TrajectoryID      int64                `json:"trajectory_id"`
	Stats             TreeStats            `json:"stats"`
	CreationMetadata  map[string]any       `json:"creation_metadata,omitempty"`
}

// TrajectoryStep is one entry in a TrajectoryRecord's append-only log.
type TrajectoryStep struct {
	StepID       int64          `json:"step_id"`
	StepName     string         `json:"step_name"`
	StepType     StepType       `json:"step_type"`
	InputDigest  string         `json:"input_digest"`
	OutputDigest string         `json:"output_digest"`
	Success      bool           `json:"success"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// TrajectoryStatus is the terminal disposition of a TrajectoryRecord.
type TrajectoryStatus string

const (
	TrajectoryOpen      TrajectoryStatus = "open"
	TrajectoryCompleted TrajectoryStatus = "completed"
	TrajectoryCancelled TrajectoryStatus = "cancelled"
	TrajectoryFailed    TrajectoryStatus = "failed"
)

// TrajectoryRecord is the append-only log of every decision made while
// building one document's tree. The Trajectory Recorder is the sole writer.
type TrajectoryRecord struct {
	TrajectoryID int64            `json:"trajectory_id"`
	DocumentID   string           `json:"document_id"`
	TreeID       *int64           `json:"tree_id,omitempty"`
	Status       TrajectoryStatus `json:"status"`
	Steps        []TrajectoryStep `json:"steps"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
}
