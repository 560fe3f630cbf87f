// Package ir provides the intermediate representation of scenes and traces.
//
// A SceneSpec is what the compiler produces from a CUE scene description and
// what the engine builds a live field graph from. Pass, Event and Snapshot
// are the trace records the engine emits and the store persists.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in hashed values: field values travel as their
//     canonical text form
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
