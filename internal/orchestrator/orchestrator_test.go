package orchestrator

import (
	"context"
	"strings"
	"testing"

	"deepquery.app/engine/common/id"
	"deepquery.app/engine/internal/childquestion"
	"deepquery.app/engine/internal/circular"
	"deepquery.app/engine/internal/extension"
	"deepquery.app/engine/internal/integrator"
	"deepquery.app/engine/internal/keywordhierarchy"
	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
	"deepquery.app/engine/internal/rootquestion"
	"deepquery.app/engine/internal/searchgateway"
	"deepquery.app/engine/internal/shortanswer"
	"deepquery.app/engine/internal/trajectory"
	"deepquery.app/engine/internal/validator"
)

func TestMain(m *testing.M) {
	_ = id.Init(7)
	m.Run()
}

// scriptedGateway routes each call to a canned response keyed by a
// substring of the system prompt, simulating five distinct collaborators
// sharing one chat backend.
type scriptedGateway struct {
	routes []struct {
		match    string
		response string
	}
}

func (g *scriptedGateway) on(match, response string) {
	g.routes = append(g.routes, struct {
		match    string
		response string
	}{match, response})
}

func (g *scriptedGateway) Generate(ctx context.Context, req llmgateway.Request) (string, error) {
	for _, r := range g.routes {
		if strings.Contains(req.SystemPrompt, r.match) {
			return r.response, nil
		}
	}
	return "", nil
}

type scriptedSearch struct{}

func (scriptedSearch) Search(ctx context.Context, query string, topK int) (searchgateway.Result, error) {
	return searchgateway.Result{Results: []model.SearchResult{
		{Title: "NASA mission archive", URL: "https://example.com/nasa", Content: "NASA commissioned the infrared observatory mission.", Rank: 1},
	}}, nil
}

func buildTestOrchestrator() (*Orchestrator, *scriptedGateway) {
	gw := &scriptedGateway{}
	gw.on("propose atomic, objectively verifiable short answers",
		`{"answers":[{"text":"James Webb Space Telescope","type":"proper_noun","confidence":0.9,"source_span":"James Webb Space Telescope"}]}`)
	gw.on("write single, well-formed research questions whose unique, unambiguous answer",
		`{"text":"Which telescope launched in 2021 under NASA","question_type":"which","keywords_used":["2021","NASA"]}`)
	gw.on("extract the smallest possible set of keywords",
		`{"keywords":[{"text":"NASA","type":"proper_noun","confidence":0.9},{"text":"2021","type":"number","confidence":0.9}]}`)
	gw.on("single correct answer",
		`{"single_answer":0.9,"solvable":0.9,"unambiguous":0.9,"verifiable":0.9,"no_answer_leakage":0.9}`)
	gw.on("distinctive, non-ambiguous",
		`{"distinctive":0.9,"non_ambiguous":0.9,"not_repeated":0.9,"precise":0.9}`)
	gw.on("ambiguous, repeated, generic, and vague",
		`{"ambiguous":0.1,"repeated":0.1,"generic":0.1,"vague":0.1}`)
	gw.on("fuse short search snippets",
		`{"synthesized_text":"NASA commissioned the infrared observatory mission.","confidence":0.8}`)
	gw.on("write single, well-formed follow-up questions that extend a research tree",
		`{"text":"Which government agency commissioned the infrared observatory mission","question_type":"which"}`)
	gw.on("fuse a chain of nested research questions",
		`{"text":"Which space telescope was commissioned by the agency that launched it in the year mentioned","single_answer":true,"no_answer_leakage":true,"encodes_all_clauses":true,"confidence":0.9}`)

	extractor := shortanswer.New(gw)
	rootGen := rootquestion.New(gw)
	validate := validator.New(gw, gw, validator.Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})
	hierarchy := keywordhierarchy.New(gw)
	synthesizer := extension.New(scriptedSearch{}, gw)
	childGen := childquestion.New(gw)
	integrate := integrator.New(gw)

	return New(extractor, rootGen, validate, hierarchy, synthesizer, childGen, integrate), gw
}

func TestBuildTreeProducesRootAndOneExtensionNode(t *testing.T) {
	orch, _ := buildTestOrchestrator()
	doc := model.Document{
		DocID:   "doc-1",
		TopicID: "space-telescopes",
		Content: "The James Webb Space Telescope launched in 2021 under NASA.",
	}
	budget := Budget{DepthMax: 1, RetriesPerNode: 0, LLMCallsPerDoc: 13, SearchCallsPerDoc: 10}

	tree, rec, err := orch.BuildTree(context.Background(), doc, budget, 42)

	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}
	if len(tree.Nodes) != 2 {
		t.Fatalf("expected root + 1 extension node, got %d nodes: %+v", len(tree.Nodes), tree.Nodes)
	}
	root, ok := tree.Nodes[tree.RootNodeID]
	if !ok || root.ExtensionType != model.ExtensionRoot || root.Depth != 0 {
		t.Fatalf("unexpected root node: %+v", root)
	}
	if root.Question.ExpectedAnswer != "James Webb Space Telescope" {
		t.Fatalf("unexpected root answer: %q", root.Question.ExpectedAnswer)
	}
	if tree.IntegratedQuery == nil {
		t.Fatalf("expected an integrated query once the tree has more than one node")
	}
	if tree.IntegratedQuery.RootAnswer != "James Webb Space Telescope" {
		t.Fatalf("unexpected integrated query root answer: %+v", tree.IntegratedQuery)
	}
	if rec.Status != model.TrajectoryCompleted {
		t.Fatalf("expected a completed trajectory, got %v", rec.Status)
	}
	if len(rec.Steps) == 0 {
		t.Fatalf("expected the trajectory to have recorded steps")
	}
}

func TestExpandOnceStopsAtBranchMax(t *testing.T) {
	orch, _ := buildTestOrchestrator()

	root := model.TreeNode{
		NodeID:        "root",
		ExtensionType: model.ExtensionRoot,
		Depth:         0,
		Question:      model.Question{Text: "Which telescope launched in 2021 under NASA", ExpectedAnswer: "James Webb Space Telescope", QuestionType: model.QuestionWhich},
	}
	existingChild := model.TreeNode{
		NodeID:        "child-1",
		ParentNodeID:  strp("root"),
		Depth:         1,
		ExtensionType: model.ExtensionParallel,
		Question:      model.Question{ExpectedAnswer: "NASA"},
	}
	tree := &model.ReasoningTree{
		Nodes:            map[string]model.TreeNode{"root": root, "child-1": existingChild},
		KeywordHierarchy: map[int][]model.Keyword{1: {{Text: "NASA"}, {Text: "2021"}}},
	}

	budget := Budget{DepthMax: 3, BranchMax: 1, RetriesPerNode: 2, LLMCallsPerDoc: 100, SearchCallsPerDoc: 100}
	tracker := newBudgetTracker(budget)
	detector := circular.New()
	frontier := []frontierNode{{nodeID: "root", seriesDepth: 0}}
	doc := model.Document{DocID: "doc-1", TopicID: "space-telescopes", Content: "The James Webb Space Telescope launched in 2021 under NASA."}

	orch.expandOnce(context.Background(), doc, tree, &frontier, detector, tracker, budget, trajectory.New())

	if got := childCount(tree, "root"); got != 1 {
		t.Fatalf("expected root's out-degree to stay capped at BranchMax=1, got %d", got)
	}
	if len(frontier) != 0 {
		t.Fatalf("expected root to be popped off the frontier once its branch cap is reached, got %+v", frontier)
	}
}

func TestBuildTreeStopsAtRootWhenNoShortAnswersExtracted(t *testing.T) {
	gw := &scriptedGateway{}
	gw.on("propose atomic, objectively verifiable short answers", `{"answers":[]}`)

	extractor := shortanswer.New(gw)
	rootGen := rootquestion.New(gw)
	validate := validator.New(gw, gw, validator.Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})
	hierarchy := keywordhierarchy.New(gw)
	synthesizer := extension.New(scriptedSearch{}, gw)
	childGen := childquestion.New(gw)
	integrate := integrator.New(gw)
	orch := New(extractor, rootGen, validate, hierarchy, synthesizer, childGen, integrate)

	doc := model.Document{DocID: "doc-2", TopicID: "space-telescopes", Content: "Irrelevant content."}
	tree, rec, err := orch.BuildTree(context.Background(), doc, Budget{DepthMax: 1, LLMCallsPerDoc: 100, SearchCallsPerDoc: 100}, 1)

	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}
	if len(tree.Nodes) != 0 {
		t.Fatalf("expected an empty tree when no short answers are extracted, got %+v", tree.Nodes)
	}
	if rec.Status != model.TrajectoryCompleted {
		t.Fatalf("expected completed trajectory status even for an empty tree, got %v", rec.Status)
	}
}
