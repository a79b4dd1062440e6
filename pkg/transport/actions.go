package transport

// Predicate is a metadata filter applied to a vector search.
type Predicate struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// QueryOptions selects the query mode. Exactly one of plain (vector only),
// hybrid (Alpha/TextQuery set), filtered (Filters set) or by-id (SeedID set)
// is active per call.
type QueryOptions struct {
	K         int
	Alpha     *float64
	TextQuery string
	Filters   []Predicate
	SeedID    string
}

type queryRequest struct {
	Dataset   string      `json:"dataset"`
	Vector    []float32   `json:"vector,omitempty"`
	K         int         `json:"k"`
	Alpha     *float64    `json:"alpha,omitempty"`
	TextQuery string      `json:"text_query,omitempty"`
	Filters   []Predicate `json:"filters,omitempty"`
	SeedID    string      `json:"seed_id,omitempty"`
}

type ticketResponse struct {
	Ticket string `json:"ticket"`
}

// CreateNamespacePayload creates a namespace; with Overwrite false the action
// fails when the namespace already exists, which the client treats as success.
type CreateNamespacePayload struct {
	Name      string `json:"name"`
	Overwrite bool   `json:"overwrite"`
}

// DeleteNamespacePayload removes a namespace and everything in it.
type DeleteNamespacePayload struct {
	Name string `json:"name"`
}

// InfoPayload requests record and byte counts for a namespace.
type InfoPayload struct {
	Name string `json:"name"`
}

// NamespaceInfo is the control channel's answer to an info action. Counts are
// -1 when the store cannot produce them cheaply.
type NamespaceInfo struct {
	TotalRecords int64 `json:"total_records"`
	TotalBytes   int64 `json:"total_bytes"`
}

// AddEdgePayload inserts one directed weighted edge. Subject and object are
// node ids in the store's native integer space, not caller UUIDs.
type AddEdgePayload struct {
	Namespace string  `json:"namespace"`
	Subject   int64   `json:"subject"`
	Predicate string  `json:"predicate"`
	Object    int64   `json:"object"`
	Weight    float64 `json:"weight"`
}

// TraversePayload asks the store to walk the graph breadth-first from Start.
type TraversePayload struct {
	Namespace string  `json:"namespace"`
	Start     int64   `json:"start"`
	MaxHops   int     `json:"max_hops"`
	Incoming  bool    `json:"incoming"`
	Decay     float64 `json:"decay"`
	Weighted  bool    `json:"weighted"`
}

// NodeResult is one visited node in a traversal. Node ids are returned in
// the store's native space and are not mapped back to UUIDs.
type NodeResult struct {
	Node  int64   `json:"node"`
	Score float64 `json:"score"`
	Hops  int     `json:"hops"`
}
