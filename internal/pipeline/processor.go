package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"deepquery.app/engine/common/id"
	"deepquery.app/engine/common/logger"
	"deepquery.app/engine/internal/documentloader"
	"deepquery.app/engine/internal/model"
	"deepquery.app/engine/internal/orchestrator"
	"deepquery.app/engine/internal/store"
)

// Processor drives one Job through the document loader and the Tree
// Orchestrator, then persists the resulting tree and trajectory.
//
// Grounded on the teacher's internal/worker.TaskRunner shape (load context,
// invoke the domain engine, persist results) trimmed to this engine's
// single-document unit of work.
type Processor struct {
	loader      documentloader.Loader
	orchestrator *orchestrator.Orchestrator
	budget      orchestrator.Budget
	trees       *store.TreeStore
	trajectories *store.TrajectoryStore
}

func NewProcessor(
	loader documentloader.Loader,
	orch *orchestrator.Orchestrator,
	budget orchestrator.Budget,
	trees *store.TreeStore,
	trajectories *store.TrajectoryStore,
) *Processor {
	return &Processor{
		loader:       loader,
		orchestrator: orch,
		budget:       budget,
		trees:        trees,
		trajectories: trajectories,
	}
}

// Process loads job's topic, locates its target document, builds the
// reasoning tree, and persists both the tree and the trajectory record.
func (p *Processor) Process(ctx context.Context, job Job) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TopicID:    &job.TopicID,
		DocumentID: &job.DocumentID,
		Component:  "engine.pipeline.processor",
	})

	docs, err := p.loader.IterTopic(ctx, job.TopicID)
	if err != nil {
		return fmt.Errorf("loading topic %s: %w", job.TopicID, err)
	}

	doc, ok := findDocument(docs, job.DocumentID)
	if !ok {
		return fmt.Errorf("document %s not found in topic %s", job.DocumentID, job.TopicID)
	}

	treeID := job.TreeID
	if treeID == 0 {
		treeID = id.New()
	}

	tree, trajectory, err := p.orchestrator.BuildTree(ctx, doc, p.budget, treeID)
	if err != nil {
		return fmt.Errorf("building tree for document %s: %w", job.DocumentID, err)
	}

	if p.trees != nil {
		if err := p.trees.Save(ctx, *tree); err != nil {
			return fmt.Errorf("persisting tree %d: %w", tree.TreeID, err)
		}
	}
	if p.trajectories != nil {
		if err := p.trajectories.Save(ctx, trajectory); err != nil {
			return fmt.Errorf("persisting trajectory %d: %w", trajectory.TrajectoryID, err)
		}
	}

	slog.InfoContext(ctx, "document processed",
		"tree_id", tree.TreeID, "nodes", len(tree.Nodes), "llm_calls", tree.Stats.LLMCalls,
		"web_searches", tree.Stats.WebSearches)
	return nil
}

func findDocument(docs []model.Document, documentID string) (model.Document, bool) {
	for _, d := range docs {
		if d.DocID == documentID {
			return d, true
		}
	}
	return model.Document{}, false
}
