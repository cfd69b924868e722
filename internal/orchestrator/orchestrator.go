// Package orchestrator implements component J: the per-document state
// machine that drives components C through L into a complete
// ReasoningTree.
//
// Grounded on internal/brain/orchestrator.go's state-machine-over-a-loop
// shape (claim → cycle → defer cleanup → typed retryable/fatal errors), the
// engagement-specific plumbing (issue claiming, webhook event draining)
// replaced by the tree-building state transitions of spec.md §4.J.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deepquery.app/engine/common/logger"
	"deepquery.app/engine/internal/childquestion"
	"deepquery.app/engine/internal/circular"
	"deepquery.app/engine/internal/errs"
	"deepquery.app/engine/internal/extension"
	"deepquery.app/engine/internal/integrator"
	"deepquery.app/engine/internal/keywordhierarchy"
	"deepquery.app/engine/internal/model"
	"deepquery.app/engine/internal/rootquestion"
	"deepquery.app/engine/internal/shortanswer"
	"deepquery.app/engine/internal/trajectory"
	"deepquery.app/engine/internal/validator"

	"deepquery.app/engine/common/id"
)

// state names the orchestrator's state machine per spec.md §4.J.
type state string

const (
	stateInit                state = "INIT"
	stateExtractingAnswers   state = "EXTRACTING_ANSWERS"
	stateBuildingRoot        state = "BUILDING_ROOT"
	stateExtractingKeywords  state = "EXTRACTING_KEYWORDS"
	stateExpanding           state = "EXPANDING"
	stateFinalizing          state = "FINALIZING"
	stateDone                state = "DONE"
)

// Budget bundles the hard caps the orchestrator maintains per document.
type Budget struct {
	DepthMax          int
	BranchMax         int
	RetriesPerNode    int
	LLMCallsPerDoc    int
	SearchCallsPerDoc int
	WallClockCap      time.Duration
}

// approximateCallCost documents, per call site, the number of LLM/search
// calls its component may issue internally. The orchestrator has no
// instrumented channel into each component's retry loop, so it charges the
// budget by these upper-bound estimates rather than an exact count.
const (
	costShortAnswerExtract  = 1
	costRootQuestionAttempt = 1
	costValidatorCall       = 4 // 2 validity judgments + 2 uniqueness judgments
	costKeywordExtract      = 1
	costExtensionSynthesize = 1 // 1 search call
	costExtensionSynthLLM   = 1
	costChildQuestionAttempt = 1
	costIntegration         = 1
)

type Orchestrator struct {
	extractor    *shortanswer.Extractor
	rootGen      *rootquestion.Generator
	validate     *validator.Validator
	hierarchy    *keywordhierarchy.Manager
	synthesizer  *extension.Synthesizer
	childGen     *childquestion.Generator
	integrate    *integrator.Integrator
}

func New(
	extractor *shortanswer.Extractor,
	rootGen *rootquestion.Generator,
	validate *validator.Validator,
	hierarchy *keywordhierarchy.Manager,
	synthesizer *extension.Synthesizer,
	childGen *childquestion.Generator,
	integrate *integrator.Integrator,
) *Orchestrator {
	return &Orchestrator{
		extractor:   extractor,
		rootGen:     rootGen,
		validate:    validate,
		hierarchy:   hierarchy,
		synthesizer: synthesizer,
		childGen:    childGen,
		integrate:   integrate,
	}
}

// budgetTracker counts consumed LLM and search calls against a Budget and
// reports BudgetExhausted once either cap is hit.
type budgetTracker struct {
	budget     Budget
	llmCalls   int
	searchCalls int
	deadline   time.Time
}

func newBudgetTracker(b Budget) *budgetTracker {
	bt := &budgetTracker{budget: b}
	if b.WallClockCap > 0 {
		bt.deadline = time.Now().Add(b.WallClockCap)
	}
	return bt
}

func (t *budgetTracker) chargeLLM(n int) { t.llmCalls += n }
func (t *budgetTracker) chargeSearch(n int) { t.searchCalls += n }

func (t *budgetTracker) exhausted() bool {
	if t.llmCalls >= t.budget.LLMCallsPerDoc {
		return true
	}
	if t.searchCalls >= t.budget.SearchCallsPerDoc {
		return true
	}
	if !t.deadline.IsZero() && time.Now().After(t.deadline) {
		return true
	}
	return false
}

// frontierNode tracks one expansion frontier entry: the node to extend
// from and how many series extensions the chain leading to it already uses.
type frontierNode struct {
	nodeID      string
	seriesDepth int
}

// BuildTree drives one document through the full state machine and returns
// its tree (possibly partial) alongside the finalized trajectory record.
func (o *Orchestrator) BuildTree(ctx context.Context, doc model.Document, budget Budget, treeID int64) (*model.ReasoningTree, model.TrajectoryRecord, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DocumentID: &doc.DocID,
		TopicID:    &doc.TopicID,
		Component:  "engine.orchestrator",
	})

	rec := trajectory.New()
	trajectoryID := rec.Start(doc.DocID)

	tracker := newBudgetTracker(budget)
	started := time.Now()

	tree := model.ReasoningTree{
		TreeID:           treeID,
		TopicID:          doc.TopicID,
		TrajectoryID:     trajectoryID,
		Nodes:            make(map[string]model.TreeNode),
		KeywordHierarchy: make(map[int][]model.Keyword),
	}

	cur := stateInit
	detector := circular.New()
	var frontier []frontierNode
	var finalStatus model.TrajectoryStatus = model.TrajectoryCompleted

	for cur != stateDone {
		select {
		case <-ctx.Done():
			finalStatus = model.TrajectoryCancelled
			cur = stateFinalizing
		default:
		}

		switch cur {
		case stateInit:
			cur = stateExtractingAnswers

		case stateExtractingAnswers:
			stepStart := time.Now()
			answers := o.extractor.Extract(ctx, doc)
			tracker.chargeLLM(costShortAnswerExtract)
			rec.Record(trajectory.StepInput{
				StepName: "extract_short_answers", StepType: model.StepExtraction,
				Input: doc.DocID, Output: answers, Success: len(answers) > 0,
				StartedAt: stepStart, EndedAt: time.Now(),
			})
			if len(answers) == 0 {
				cur = stateDone
				break
			}
			cur = stateBuildingRoot
			rootFrontier, err := o.buildRoot(ctx, doc, answers, &tree, detector, tracker, rec)
			if err != nil {
				finalStatus = model.TrajectoryFailed
				cur = stateFinalizing
				break
			}
			if rootFrontier == nil {
				cur = stateDone
			} else {
				frontier = rootFrontier
				cur = stateExtractingKeywords
			}

		case stateExtractingKeywords:
			root := tree.Nodes[tree.RootNodeID]
			kws := o.hierarchy.Extract(ctx, root.Question.Text, root.Question.ExpectedAnswer, doc.Content)
			tracker.chargeLLM(costKeywordExtract)
			kws = keywordhierarchy.MinimumKeywordCheck(kws, minimumCheckHeuristic(kws))
			tree.KeywordHierarchy[1] = kws
			if len(kws) == 0 {
				cur = stateFinalizing
				break
			}
			frontier = []frontierNode{{nodeID: tree.RootNodeID, seriesDepth: 0}}
			cur = stateExpanding

		case stateExpanding:
			if len(frontier) == 0 || tracker.exhausted() {
				cur = stateFinalizing
				break
			}
			progressed := o.expandOnce(ctx, doc, &tree, &frontier, detector, tracker, budget, rec)
			if !progressed || tracker.exhausted() {
				cur = stateFinalizing
			}

		case stateFinalizing:
			if len(tree.Nodes) > 1 {
				stepStart := time.Now()
				iq := o.integrate.Integrate(ctx, tree)
				tracker.chargeLLM(costIntegration)
				tree.IntegratedQuery = iq
				rec.Record(trajectory.StepInput{
					StepName: "integrate_tree", StepType: model.StepIntegration,
					Success:   iq != nil,
					StartedAt: stepStart, EndedAt: time.Now(),
				})
			}
			cur = stateDone

		default:
			cur = stateDone
		}
	}

	tree.Stats = computeStats(tree, tracker, started)

	treeIDPtr := tree.TreeID
	finalRecord := rec.Finalize(finalStatus, &treeIDPtr)

	slog.InfoContext(ctx, "tree build finished",
		"tree_id", tree.TreeID, "nodes", len(tree.Nodes), "status", finalStatus)

	return &tree, finalRecord, nil
}

// buildRoot proposes a root question for each candidate short answer in
// turn, validating each until one passes or the candidates are exhausted.
func (o *Orchestrator) buildRoot(ctx context.Context, doc model.Document, answers []model.ShortAnswer, tree *model.ReasoningTree, detector *circular.Detector, tracker *budgetTracker, rec *trajectory.Recorder) ([]frontierNode, error) {
	for _, ans := range answers {
		if tracker.exhausted() {
			return nil, errs.NewFatal(errs.ErrBudgetExhausted)
		}

		stepStart := time.Now()
		q, err := o.rootGen.Generate(ctx, doc, ans)
		tracker.chargeLLM(costRootQuestionAttempt)
		if err != nil || q == nil {
			rec.Record(trajectory.StepInput{StepName: "generate_root_question", StepType: model.StepGeneration, Success: false, StartedAt: stepStart, EndedAt: time.Now()})
			continue
		}

		circularCheck := detector.Check(*q, ans.Text)
		if circularCheck.IsCircular {
			continue
		}

		result := o.validate.Validate(ctx, q.Text, q.ExpectedAnswer, doc.Content)
		tracker.chargeLLM(costValidatorCall)
		rec.Record(trajectory.StepInput{
			StepName: "validate_root_question", StepType: model.StepValidation, Success: result.Passed,
			Scores:    map[string]float64{"specificity": result.Specificity, "validity": result.Validity, "uniqueness": result.Uniqueness, "overall": result.Overall},
			StartedAt: stepStart, EndedAt: time.Now(),
		})
		if !result.Passed {
			continue
		}

		q.ValidationScore = result.Overall
		q.QuestionID = fmt.Sprintf("n%d", id.New())
		nodeID := q.QuestionID
		tree.RootNodeID = nodeID
		tree.Nodes[nodeID] = model.TreeNode{
			NodeID:        nodeID,
			Question:      *q,
			ExtensionType: model.ExtensionRoot,
			Depth:         0,
			KeywordsUsed:  nil,
			ValidationScores: model.ValidationScores{
				DualModel: result.Overall,
			},
			WorkflowCompliant: true,
		}
		detector.Record(*q, ans.Text)
		return []frontierNode{{nodeID: nodeID, seriesDepth: 0}}, nil
	}
	return nil, nil
}

// expandOnce extends the tree from one frontier entry by at most one node,
// retrying with the next keyword up to RetriesPerNode times; the extension
// type chosen for the entry stays the same across retries. It returns false when no progress could be made on the whole
// frontier (signalling the orchestrator to finalize).
func (o *Orchestrator) expandOnce(ctx context.Context, doc model.Document, tree *model.ReasoningTree, frontier *[]frontierNode, detector *circular.Detector, tracker *budgetTracker, budget Budget, rec *trajectory.Recorder) bool {
	if len(*frontier) == 0 {
		return false
	}

	entry := (*frontier)[len(*frontier)-1]
	parent, ok := tree.Nodes[entry.nodeID]
	if !ok || parent.Depth >= budget.DepthMax || entry.seriesDepth >= budget.DepthMax {
		*frontier = (*frontier)[:len(*frontier)-1]
		return len(*frontier) > 0
	}
	if budget.BranchMax > 0 && childCount(tree, parent.NodeID) >= budget.BranchMax {
		*frontier = (*frontier)[:len(*frontier)-1]
		return len(*frontier) > 0
	}

	extType := chooseExtensionType(tree, parent, budget)
	keywords := tree.KeywordHierarchy[parent.Depth+1]
	if len(keywords) == 0 {
		keywords = o.hierarchy.Extract(ctx, parent.Question.Text, parent.Question.ExpectedAnswer, doc.Content)
		tracker.chargeLLM(costKeywordExtract)
		keywords = keywordhierarchy.MinimumKeywordCheck(keywords, minimumCheckHeuristic(keywords))
		tree.KeywordHierarchy[parent.Depth+1] = keywords
	}
	if len(keywords) == 0 {
		*frontier = (*frontier)[:len(*frontier)-1]
		return len(*frontier) > 0
	}

	ancestorAnswers := ancestorAnswerChain(tree, parent)
	siblingAnswers := siblingAnswerSet(tree, parent)

	for attempt := 0; attempt <= budget.RetriesPerNode; attempt++ {
		if tracker.exhausted() {
			return false
		}
		kw := keywords[attempt%len(keywords)]

		extCtxResult, err := o.synthesizer.Synthesize(ctx, kw.Text, parent.Question.Text, parent.Question.ExpectedAnswer, extType)
		tracker.chargeSearch(costExtensionSynthesize)
		tracker.chargeLLM(costExtensionSynthLLM)
		if err != nil {
			continue
		}

		childQ, err := o.childGen.Generate(ctx, parent.Question, kw.Text, extCtxResult, extType, kw.KeywordType)
		tracker.chargeLLM(costChildQuestionAttempt)
		if err != nil || childQ == nil {
			continue
		}

		match := keywordhierarchy.ValidateChildAnswer(childQ.ExpectedAnswer, keywords)
		if !match.Matched {
			continue
		}

		shortcut := keywordhierarchy.CheckShortcut(childQ.Text, childQ.ExpectedAnswer, ancestorAnswers, siblingAnswers)
		if !shortcut.Passed {
			continue
		}

		if detector.Check(*childQ, kw.Text).IsCircular {
			continue
		}

		result := o.validate.Validate(ctx, childQ.Text, childQ.ExpectedAnswer, doc.Content)
		tracker.chargeLLM(costValidatorCall)
		if !result.Passed {
			continue
		}

		childQ.ValidationScore = result.Overall
		childQ.QuestionID = fmt.Sprintf("n%d", id.New())
		parentID := parent.NodeID
		var searchContextID *string
		if extCtxResult != nil {
			scid := fmt.Sprintf("sc%d", id.New())
			searchContextID = &scid
		}

		tree.Nodes[childQ.QuestionID] = model.TreeNode{
			NodeID:          childQ.QuestionID,
			Question:        *childQ,
			ExtensionType:   extType,
			Depth:           parent.Depth + 1,
			ParentNodeID:    &parentID,
			KeywordsUsed:    []string{kw.Text},
			SearchContextID: searchContextID,
			ValidationScores: model.ValidationScores{
				Hierarchy: match.Confidence,
				Shortcut:  shortcut.Confidence,
				DualModel: result.Overall,
			},
			WorkflowCompliant: true,
		}
		detector.Record(*childQ, kw.Text)

		rec.Record(trajectory.StepInput{
			StepName: "expand_node", StepType: model.StepGeneration, Success: true,
			Metadata: map[string]any{
				"parent_node_id": parentID, "extension_type": string(extType),
				"keyword_mapping": map[string]string{kw.Text: match.Keyword},
				"minimum_keyword_count": essentialCount(keywords),
			},
			StartedAt: time.Now(), EndedAt: time.Now(),
		})

		nextSeries := entry.seriesDepth
		if extType == model.ExtensionSeries {
			nextSeries++
		}
		*frontier = append(*frontier, frontierNode{nodeID: childQ.QuestionID, seriesDepth: nextSeries})
		return true
	}

	*frontier = (*frontier)[:len(*frontier)-1]
	return len(*frontier) > 0
}

// chooseExtensionType implements spec.md §4.J's deterministic rule: prefer
// series if the current frontier already has more than one parallel node
// under the same parent; otherwise alternate by depth parity.
func chooseExtensionType(tree *model.ReasoningTree, parent model.TreeNode, budget Budget) model.ExtensionType {
	parallelSiblings := 0
	for _, n := range tree.Nodes {
		if n.ParentNodeID != nil && *n.ParentNodeID == parent.NodeID && n.ExtensionType == model.ExtensionParallel {
			parallelSiblings++
		}
	}
	if parallelSiblings > 1 {
		return model.ExtensionSeries
	}
	if (parent.Depth+1)%2 == 1 {
		return model.ExtensionParallel
	}
	return model.ExtensionSeries
}

// childCount returns parentID's current out-degree in tree, used to enforce
// spec.md §4.J's "max parallel branches per parent = BRANCH_MAX" cap before
// a further child is attempted.
func childCount(tree *model.ReasoningTree, parentID string) int {
	n := 0
	for _, node := range tree.Nodes {
		if node.ParentNodeID != nil && *node.ParentNodeID == parentID {
			n++
		}
	}
	return n
}

func ancestorAnswerChain(tree *model.ReasoningTree, node model.TreeNode) []string {
	var out []string
	cur := node
	for cur.ParentNodeID != nil {
		parent, ok := tree.Nodes[*cur.ParentNodeID]
		if !ok {
			break
		}
		out = append(out, parent.Question.ExpectedAnswer)
		cur = parent
	}
	return out
}

func siblingAnswerSet(tree *model.ReasoningTree, node model.TreeNode) []string {
	var out []string
	for _, n := range tree.Nodes {
		if n.ParentNodeID != nil && node.ParentNodeID != nil && *n.ParentNodeID == *node.ParentNodeID && n.NodeID != node.NodeID {
			out = append(out, n.Question.ExpectedAnswer)
		}
	}
	return out
}

func computeStats(tree model.ReasoningTree, tracker *budgetTracker, started time.Time) model.TreeStats {
	var maxDepth int
	var series, parallel int
	for _, n := range tree.Nodes {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
		switch n.ExtensionType {
		case model.ExtensionSeries:
			series++
		case model.ExtensionParallel:
			parallel++
		}
	}
	return model.TreeStats{
		WebSearches: tracker.searchCalls,
		LLMCalls:    tracker.llmCalls,
		Depth:       maxDepth,
		Size:        len(tree.Nodes),
		DurationMS:  time.Since(started).Milliseconds(),
		BranchCounts: model.BranchCounts{
			Series:   series,
			Parallel: parallel,
		},
	}
}

// minimumCheckHeuristic approximates the "if k were hidden, would the rest
// still uniquely identify the answer" counterfactual the minimum keyword
// check calls for: a keyword is essential if its specificity clears a floor
// or it is the only keyword extracted. This is a deterministic stand-in for
// the LLM counterfactual described in spec.md §4.F.
func minimumCheckHeuristic(keywords []model.Keyword) func(idx int) bool {
	return func(idx int) bool {
		if len(keywords) <= 1 {
			return true
		}
		return keywords[idx].SpecificityScore >= 0.5
	}
}

func essentialCount(keywords []model.Keyword) int {
	n := 0
	for _, k := range keywords {
		if k.Essential {
			n++
		}
	}
	return n
}
