package engine

import "github.com/roach88/fieldnet/internal/field"

// wouldCycle reports whether routing src to dst closes a route cycle, that
// is, whether src is already reachable from dst.
//
// Field evaluation terminates on cycles without this check (a field inside
// its own recompute does not recompute again), but the value a cycle settles
// on depends on read order. Scenes built WithCycleCheck refuse such routes.
func wouldCycle(src, dst field.Field) bool {
	if src == dst {
		return true
	}
	seen := map[field.Field]bool{dst: true}
	stack := []field.Field{dst}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range f.RoutesOut() {
			if next == src {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
