// Package arangodb adapts the go-driver/v2 client into a graph store for
// reasoning trees: one vertex per TreeNode, one "extends" edge per
// parent->child keyword extension. The shape (EnsureDatabase /
// EnsureCollections / EnsureGraph / ingest / traverse) follows the teacher's
// codegraph client; the collections and queries are rebuilt for this domain.
package arangodb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

const (
	graphName      = "reasoning_tree"
	nodeCollection = "tree_nodes"
	edgeCollection = "extends"
)

type Client interface {
	EnsureDatabase(ctx context.Context) error
	EnsureCollections(ctx context.Context) error
	EnsureGraph(ctx context.Context) error

	PutNode(ctx context.Context, n NodeDoc) error
	PutEdge(ctx context.Context, e EdgeDoc) error

	GetNode(ctx context.Context, treeID, nodeID string) (TreeNodeView, error)
	GetChildren(ctx context.Context, treeID, nodeID string) ([]TreeNodeView, error)
	GetAncestors(ctx context.Context, treeID, nodeID string) ([]TreeNodeView, error)
	GetSiblings(ctx context.Context, treeID, parentNodeID, excludeNodeID string) ([]TreeNodeView, error)
	GetTreeNodes(ctx context.Context, treeID string) ([]TreeNodeView, error)

	Close() error
}

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

type client struct {
	conn         connection.Connection
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          Config
}

func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	return &client{
		conn:         conn,
		arangoClient: arangodb.NewClient(conn),
		cfg:          cfg,
	}, nil
}

func (c *client) Close() error {
	return nil
}

func (c *client) EnsureDatabase(ctx context.Context) error {
	exists, err := c.arangoClient.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		if _, err := c.arangoClient.CreateDatabase(ctx, c.cfg.Database, nil); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created", "database", c.cfg.Database)
	}

	db, err := c.arangoClient.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	c.db = db
	return nil
}

func (c *client) EnsureCollections(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}
	if err := c.ensureCollection(ctx, nodeCollection, false); err != nil {
		return err
	}
	if err := c.ensureCollection(ctx, edgeCollection, true); err != nil {
		return err
	}
	return nil
}

func (c *client) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}
	if exists {
		return nil
	}

	props := &arangodb.CreateCollectionPropertiesV2{}
	colType := arangodb.CollectionTypeDocument
	if isEdge {
		colType = arangodb.CollectionTypeEdge
	}
	props.Type = &colType

	if _, err := c.db.CreateCollectionV2(ctx, name, props); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	slog.InfoContext(ctx, "arangodb collection created", "collection", name, "is_edge", isEdge)
	return nil
}

func (c *client) EnsureGraph(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	exists, err := c.db.GraphExists(ctx, graphName)
	if err != nil {
		return fmt.Errorf("check graph exists: %w", err)
	}
	if exists {
		return nil
	}

	graphDef := &arangodb.GraphDefinition{
		Name: graphName,
		EdgeDefinitions: []arangodb.EdgeDefinition{
			{Collection: edgeCollection, From: []string{nodeCollection}, To: []string{nodeCollection}},
		},
	}
	if _, err := c.db.CreateGraph(ctx, graphName, graphDef, nil); err != nil {
		return fmt.Errorf("create graph: %w", err)
	}
	slog.InfoContext(ctx, "arangodb graph created", "graph", graphName)
	return nil
}

// PutNode upserts a tree node vertex. Duplicates of the same node_id are
// overwritten — a node's validation scores are finalized incrementally as
// the orchestrator revisits it.
func (c *client) PutNode(ctx context.Context, n NodeDoc) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	col, err := c.db.GetCollection(ctx, nodeCollection, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", nodeCollection, err)
	}

	props, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("marshal node properties: %w", err)
	}
	var propsMap map[string]any
	if err := json.Unmarshal(props, &propsMap); err != nil {
		return fmt.Errorf("unmarshal node properties: %w", err)
	}

	doc := map[string]any{
		"_key":       makeKey(n.TreeID, n.NodeID),
		"node_id":    n.NodeID,
		"tree_id":    n.TreeID,
		"depth":      n.Depth,
		"ext_type":   n.ExtType,
		"exp_answer": n.ExpAnswer,
		"properties": propsMap,
	}

	_, err = col.CreateDocumentWithOptions(ctx, doc, &arangodb.CollectionDocumentCreateOptions{
		OverwriteMode: arangodb.CollectionDocumentCreateOverwriteModeUpdate,
	})
	if err != nil {
		return fmt.Errorf("upsert node document: %w", err)
	}
	return nil
}

func (c *client) PutEdge(ctx context.Context, e EdgeDoc) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	col, err := c.db.GetCollection(ctx, edgeCollection, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", edgeCollection, err)
	}

	doc := map[string]any{
		"_key":           makeKey(e.TreeID, e.From+"->"+e.To),
		"_from":          fmt.Sprintf("%s/%s", nodeCollection, makeKey(e.TreeID, e.From)),
		"_to":            fmt.Sprintf("%s/%s", nodeCollection, makeKey(e.TreeID, e.To)),
		"tree_id":        e.TreeID,
		"target_keyword": e.TargetKeyword,
	}

	_, err = col.CreateDocumentWithOptions(ctx, doc, &arangodb.CollectionDocumentCreateOptions{
		OverwriteMode: arangodb.CollectionDocumentCreateOverwriteModeUpdate,
	})
	if err != nil {
		return fmt.Errorf("upsert edge document: %w", err)
	}
	return nil
}

func (c *client) GetNode(ctx context.Context, treeID, nodeID string) (TreeNodeView, error) {
	nodes, err := c.queryNodes(ctx, "FILTER doc._key == @key", map[string]any{
		"key": makeKey(treeID, nodeID),
	})
	if err != nil {
		return TreeNodeView{}, err
	}
	if len(nodes) == 0 {
		return TreeNodeView{}, fmt.Errorf("node %s not found in tree %s", nodeID, treeID)
	}
	return nodes[0], nil
}

func (c *client) GetChildren(ctx context.Context, treeID, nodeID string) ([]TreeNodeView, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	start := fmt.Sprintf("%s/%s", nodeCollection, makeKey(treeID, nodeID))
	query := fmt.Sprintf(`
		FOR v IN 1..1 OUTBOUND @start GRAPH %q
			RETURN v
	`, graphName)

	return c.execQuery(ctx, query, map[string]any{"start": start})
}

func (c *client) GetAncestors(ctx context.Context, treeID, nodeID string) ([]TreeNodeView, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	start := fmt.Sprintf("%s/%s", nodeCollection, makeKey(treeID, nodeID))
	query := fmt.Sprintf(`
		FOR v IN 1..10 INBOUND @start GRAPH %q
			RETURN v
	`, graphName)

	return c.execQuery(ctx, query, map[string]any{"start": start})
}

func (c *client) GetSiblings(ctx context.Context, treeID, parentNodeID, excludeNodeID string) ([]TreeNodeView, error) {
	children, err := c.GetChildren(ctx, treeID, parentNodeID)
	if err != nil {
		return nil, err
	}
	out := children[:0]
	for _, ch := range children {
		if ch.NodeID != excludeNodeID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *client) GetTreeNodes(ctx context.Context, treeID string) ([]TreeNodeView, error) {
	return c.queryNodes(ctx, "FILTER doc.tree_id == @treeID", map[string]any{"treeID": treeID})
}

func (c *client) queryNodes(ctx context.Context, filter string, bindVars map[string]any) ([]TreeNodeView, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := fmt.Sprintf(`
		FOR doc IN %s
			%s
			RETURN doc
	`, nodeCollection, filter)

	return c.execQuery(ctx, query, bindVars)
}

func (c *client) execQuery(ctx context.Context, query string, bindVars map[string]any) ([]TreeNodeView, error) {
	start := time.Now()

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	var results []TreeNodeView
	for cursor.HasMore() {
		var doc struct {
			NodeID     string         `json:"node_id"`
			Depth      int            `json:"depth"`
			ExtType    string         `json:"ext_type"`
			ExpAnswer  string         `json:"exp_answer"`
			Properties map[string]any `json:"properties"`
		}
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		results = append(results, TreeNodeView{
			NodeID:         doc.NodeID,
			Depth:          doc.Depth,
			ExtensionType:  doc.ExtType,
			ExpectedAnswer: doc.ExpAnswer,
			Properties:     doc.Properties,
		})
	}

	slog.DebugContext(ctx, "arangodb query completed", "results", len(results), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

func makeKey(treeID, suffix string) string {
	hash := md5.Sum([]byte(treeID + "/" + suffix))
	return hex.EncodeToString(hash[:])[:20]
}
