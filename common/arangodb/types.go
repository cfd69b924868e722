package arangodb

// Direction controls which way an edge traversal walks the graph.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionAny      Direction = "any"
)

// NodeDoc is the vertex document stored for one TreeNode. Properties is the
// JSON-encoded model.TreeNode; the graph store only indexes the fields it
// needs to traverse and filter efficiently.
type NodeDoc struct {
	NodeID     string
	TreeID     string
	Depth      int
	ExtType    string
	ExpAnswer  string
	Properties map[string]any
}

// EdgeDoc is a parent -> child edge in the "extends" collection.
type EdgeDoc struct {
	TreeID       string
	From         string // parent node_id
	To           string // child node_id
	TargetKeyword string
}

// TraversalOptions configures a multi-hop walk from a set of starting nodes.
type TraversalOptions struct {
	Direction Direction
	MaxDepth  int
}

// TreeNodeView is the shape returned by read queries: enough to reconstruct
// ancestor/sibling context without round-tripping the full document.
type TreeNodeView struct {
	NodeID        string
	Depth         int
	ExtensionType string
	ExpectedAnswer string
	Properties    map[string]any
}
