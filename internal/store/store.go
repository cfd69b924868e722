// Package store persists ReasoningTree summaries and TrajectoryRecords to
// Postgres via pgx, and tree nodes/edges to ArangoDB for graph traversal.
//
// Grounded on the teacher's core/db.DB transaction wrapper; query methods
// are hand-written (no sqlc) since the teacher's sqlc-generated package was
// never checked into source and regenerating it is out of reach here.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepquery.app/engine/common/arangodb"
	"deepquery.app/engine/core/db"
	"deepquery.app/engine/internal/model"
)

var ErrNotFound = errors.New("not found")

// TreeStore persists ReasoningTree summaries to Postgres and node/edge
// detail to ArangoDB.
type TreeStore struct {
	db     *db.DB
	arango arangodb.Client
}

func NewTreeStore(db *db.DB, arango arangodb.Client) *TreeStore {
	return &TreeStore{db: db, arango: arango}
}

// Save persists tree's summary row to Postgres and every node/edge to
// ArangoDB. It is not transactional across the two stores: ArangoDB writes
// happen first, so a failed graph write returns before any summary row is
// written; a Postgres failure after that leaves the graph without a summary
// row.
func (s *TreeStore) Save(ctx context.Context, tree model.ReasoningTree) error {
	treeIDStr := fmt.Sprintf("%d", tree.TreeID)

	for _, n := range tree.Nodes {
		if err := s.arango.PutNode(ctx, arangodb.NodeDoc{
			NodeID:    n.NodeID,
			TreeID:    treeIDStr,
			Depth:     n.Depth,
			ExtType:   string(n.ExtensionType),
			ExpAnswer: n.Question.ExpectedAnswer,
			Properties: map[string]any{
				"question":           n.Question.Text,
				"question_type":      n.Question.QuestionType,
				"keywords_used":      n.KeywordsUsed,
				"validation_scores":  n.ValidationScores,
				"workflow_compliant": n.WorkflowCompliant,
			},
		}); err != nil {
			return fmt.Errorf("writing node %s: %w", n.NodeID, err)
		}

		if n.ParentNodeID != nil {
			if err := s.arango.PutEdge(ctx, arangodb.EdgeDoc{
				TreeID:        treeIDStr,
				From:          *n.ParentNodeID,
				To:            n.NodeID,
				TargetKeyword: firstOrEmpty(n.KeywordsUsed),
			}); err != nil {
				return fmt.Errorf("writing edge to %s: %w", n.NodeID, err)
			}
		}
	}

	integratedJSON, err := json.Marshal(tree.IntegratedQuery)
	if err != nil {
		return fmt.Errorf("marshaling integrated query: %w", err)
	}
	statsJSON, err := json.Marshal(tree.Stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reasoning_trees (tree_id, topic_id, root_node_id, node_count, depth, integrated_query, stats)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tree_id) DO UPDATE SET
				root_node_id = EXCLUDED.root_node_id,
				node_count = EXCLUDED.node_count,
				depth = EXCLUDED.depth,
				integrated_query = EXCLUDED.integrated_query,
				stats = EXCLUDED.stats
		`, tree.TreeID, tree.TopicID, tree.RootNodeID, len(tree.Nodes), tree.Stats.Depth, integratedJSON, statsJSON)
		return err
	})
}

// GetSummary returns the Postgres-side summary row for treeID.
func (s *TreeStore) GetSummary(ctx context.Context, treeID int64) (model.ReasoningTree, error) {
	var tree model.ReasoningTree
	var integratedJSON, statsJSON []byte

	row := s.db.Pool.QueryRow(ctx, `
		SELECT tree_id, topic_id, root_node_id, depth, integrated_query, stats
		FROM reasoning_trees WHERE tree_id = $1
	`, treeID)

	if err := row.Scan(&tree.TreeID, &tree.TopicID, &tree.RootNodeID, &tree.Stats.Depth, &integratedJSON, &statsJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReasoningTree{}, ErrNotFound
		}
		return model.ReasoningTree{}, fmt.Errorf("scanning tree summary: %w", err)
	}

	if len(integratedJSON) > 0 {
		_ = json.Unmarshal(integratedJSON, &tree.IntegratedQuery)
	}
	if len(statsJSON) > 0 {
		_ = json.Unmarshal(statsJSON, &tree.Stats)
	}

	return tree, nil
}

// GetNodes loads the full node set for treeID from ArangoDB.
func (s *TreeStore) GetNodes(ctx context.Context, treeID int64) ([]arangodb.TreeNodeView, error) {
	return s.arango.GetTreeNodes(ctx, fmt.Sprintf("%d", treeID))
}

func firstOrEmpty(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}

// TrajectoryStore persists TrajectoryRecords to Postgres.
type TrajectoryStore struct {
	db *db.DB
}

func NewTrajectoryStore(db *db.DB) *TrajectoryStore {
	return &TrajectoryStore{db: db}
}

func (s *TrajectoryStore) Save(ctx context.Context, rec model.TrajectoryRecord) error {
	stepsJSON, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshaling steps: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO trajectory_records (trajectory_id, document_id, tree_id, status, steps, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (trajectory_id) DO UPDATE SET
			tree_id = EXCLUDED.tree_id,
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			closed_at = EXCLUDED.closed_at
	`, rec.TrajectoryID, rec.DocumentID, rec.TreeID, string(rec.Status), stepsJSON, rec.OpenedAt, rec.ClosedAt)
	return err
}

func (s *TrajectoryStore) GetByID(ctx context.Context, trajectoryID int64) (model.TrajectoryRecord, error) {
	var rec model.TrajectoryRecord
	var stepsJSON []byte
	var status string

	row := s.db.Pool.QueryRow(ctx, `
		SELECT trajectory_id, document_id, tree_id, status, steps, opened_at, closed_at
		FROM trajectory_records WHERE trajectory_id = $1
	`, trajectoryID)

	if err := row.Scan(&rec.TrajectoryID, &rec.DocumentID, &rec.TreeID, &status, &stepsJSON, &rec.OpenedAt, &rec.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrajectoryRecord{}, ErrNotFound
		}
		return model.TrajectoryRecord{}, fmt.Errorf("scanning trajectory record: %w", err)
	}

	rec.Status = model.TrajectoryStatus(status)
	if len(stepsJSON) > 0 {
		_ = json.Unmarshal(stepsJSON, &rec.Steps)
	}

	return rec, nil
}
