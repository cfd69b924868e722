// Package httpapi implements the HTTP exporter boundary of spec.md §6: an
// API to submit a topic for processing and fetch the resulting
// ReasoningTree, TrajectoryRecord, or stats.
//
// Grounded on the teacher's internal/http/handler package (ShouldBindJSON,
// gin.H error bodies, a thin handler delegating to a service/store) and
// internal/http/router's route-group-per-resource shape.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"deepquery.app/engine/common/id"
	"deepquery.app/engine/internal/documentloader"
	"deepquery.app/engine/internal/pipeline"
	"deepquery.app/engine/internal/store"
)

// Handler exposes the tree-building pipeline over HTTP: submit a topic,
// enqueueing one pipeline.Job per document; fetch a built tree or
// trajectory by ID.
type Handler struct {
	loader    documentloader.Loader
	producer  pipeline.Producer
	trees     *store.TreeStore
	trajectories *store.TrajectoryStore
}

func NewHandler(loader documentloader.Loader, producer pipeline.Producer, trees *store.TreeStore, trajectories *store.TrajectoryStore) *Handler {
	return &Handler{loader: loader, producer: producer, trees: trees, trajectories: trajectories}
}

type submitTopicResponse struct {
	TopicID string  `json:"topic_id"`
	TreeIDs []int64 `json:"tree_ids"`
}

// SubmitTopic loads every document for the path's topic_id and enqueues one
// pipeline.Job per document, each carrying a freshly minted tree_id so the
// caller can poll GetTree immediately.
func (h *Handler) SubmitTopic(c *gin.Context) {
	ctx := c.Request.Context()
	topicID := c.Param("topic_id")

	docs, err := h.loader.IterTopic(ctx, topicID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load topic", "topic_id", topicID, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
		return
	}
	if len(docs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "topic has no documents"})
		return
	}

	treeIDs := make([]int64, 0, len(docs))
	for _, doc := range docs {
		treeID := id.New()
		job := pipeline.Job{TopicID: topicID, DocumentID: doc.DocID, TreeID: treeID}
		if err := h.producer.Enqueue(ctx, job); err != nil {
			slog.ErrorContext(ctx, "failed to enqueue document", "document_id", doc.DocID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue document"})
			return
		}
		treeIDs = append(treeIDs, treeID)
	}

	c.JSON(http.StatusAccepted, submitTopicResponse{TopicID: topicID, TreeIDs: treeIDs})
}

// GetTree returns the persisted ReasoningTree summary (Postgres) merged
// with its node set (ArangoDB) for the path's tree_id.
func (h *Handler) GetTree(c *gin.Context) {
	ctx := c.Request.Context()

	treeID, err := parseID(c.Param("tree_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tree_id"})
		return
	}

	tree, err := h.trees.GetSummary(ctx, treeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tree not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tree"})
		return
	}

	nodes, err := h.trees.GetNodes(ctx, treeID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load tree nodes", "tree_id", treeID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"tree": tree, "nodes": nodes})
}

// GetTrajectory returns the full step-by-step TrajectoryRecord for the
// path's trajectory_id.
func (h *Handler) GetTrajectory(c *gin.Context) {
	ctx := c.Request.Context()

	trajectoryID, err := parseID(c.Param("trajectory_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trajectory_id"})
		return
	}

	rec, err := h.trajectories.GetByID(ctx, trajectoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trajectory not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trajectory"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
