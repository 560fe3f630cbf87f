// Package engine builds and runs scenes: graphs of typed fields owned by
// named nodes and connected by routes.
//
// ARCHITECTURE:
//
// Build:
// A Scene is built from an ir.SceneSpec. Every node is registered with the
// Registry, which gives it an owner id, and every field is created by the
// Factory from its type name and optional compute. Initial values are
// written as the owning node, nodes are marked initialized, and declared
// routes are created on behalf of the destination's node.
//
// Evaluation:
// Evaluation is lazy and lives in the field package. A write marks the
// field's routes out of date; a read of an out-of-date field recomputes it
// from its routes in. The engine adds nothing to evaluation order.
//
// Single-Writer Loop:
// Fields are not safe for concurrent use. Other goroutines Post writes to
// the scene's inbox; the owning goroutine applies them with Drain, or Run
// does so in a loop. One drained batch is one pass.
//
// Passes and Recording:
// Between BeginPass and EndPass every write and every field event (set,
// notify, recompute, route, unroute) is stamped with the pass token and a
// logical seq from the Sequencer and sent to the Recorder. Replay re-applies
// the recorded writes of a pass to a freshly built scene.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Events are ordered by seq. Wall-clock time is never recorded.
//
// Deterministic Build:
// Nodes, fields and routes are created in declaration order, so owner ids,
// route order and evaluation order are the same on every build.
package engine
