package ir

// Pass represents one evaluation pass over a scene. Every write applied in
// the pass, and every event it causes, carries the pass token.
type Pass struct {
	Token      string `json:"token"`       // UUIDv7 or fixed test token
	Scene      string `json:"scene"`       // Scene name
	SceneHash  string `json:"scene_hash"`  // SceneHash of the spec the scene was built from
	StartedSeq int64  `json:"started_seq"` // Logical clock at pass start
}

// Event kinds recorded in traces. The field-level kinds match the names the
// field package gives its observer events.
const (
	EventSet       = "set"
	EventNotify    = "notify"
	EventRecompute = "recompute"
	EventRoute     = "route"
	EventUnroute   = "unroute"
	EventWrite     = "write" // A marshalled write applied by the engine
	EventError     = "error" // A marshalled write that failed
)

// Event represents one recorded field event.
//
// Write and error events describe a marshalled write: Op is the write
// operation, Field its target path, Caller the name of the writing entity
// (empty for trusted writes) and Value the text argument. For route and
// unroute writes Value is the destination path.
type Event struct {
	Seq       int64  `json:"seq"`              // Logical clock
	PassToken string `json:"pass_token"`       // Owning pass
	Kind      string `json:"kind"`             // One of the Event* kinds
	Field     string `json:"field"`            // Full name of the field
	Source    string `json:"source,omitempty"` // Full name of the event source
	Value     string `json:"value,omitempty"`  // Text value (set, write, recompute) or error message
	Op        string `json:"op,omitempty"`     // Write operation (write and error events)
	Caller    string `json:"caller,omitempty"` // Writing entity (write and error events)
}

// SnapshotEntry is one field value in a snapshot.
type SnapshotEntry struct {
	Field string `json:"field"` // "Node.field"
	Value string `json:"value"` // Canonical text form
}

// Snapshot represents the values of every readable field of a scene at the
// end of a pass.
type Snapshot struct {
	Scene   string          `json:"scene"`
	Hash    string          `json:"hash"`
	Entries []SnapshotEntry `json:"entries"`
}
