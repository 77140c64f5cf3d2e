// nav/astar.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"container/heap"
	gomath "math"
)

// GridCell is an (x, y) cell on the planning grid.
type GridCell [2]int

// Grid is an occupancy grid for A* planning. Cells outside [0,Width) x
// [0,Height) and blocked cells are not traversable.
type Grid struct {
	Width, Height int
	blocked       map[GridCell]bool
}

func MakeGrid(width, height int, obstacles []GridCell) Grid {
	blocked := make(map[GridCell]bool, len(obstacles))
	for _, c := range obstacles {
		blocked[c] = true
	}
	return Grid{Width: width, Height: height, blocked: blocked}
}

func (g Grid) Blocked(c GridCell) bool {
	return g.blocked[c]
}

func (g Grid) inBounds(c GridCell) bool {
	return c[0] >= 0 && c[0] < g.Width && c[1] >= 0 && c[1] < g.Height
}

// FindPath returns the shortest 8-connected path from start to goal,
// inclusive of both, or ErrUnreachableGoal if none exists. Step costs are
// 1.0 for cardinal moves and 1.4 for diagonals with a Euclidean distance
// heuristic. Diagonal moves are permitted even when an adjacent cardinal
// cell is blocked (corner-cutting is allowed); obstacles only exclude the
// cells they occupy.
func (g Grid) FindPath(start, goal GridCell) ([]GridCell, error) {
	if !g.inBounds(start) || !g.inBounds(goal) {
		return nil, ErrInvalidGrid
	}
	if g.Blocked(start) || g.Blocked(goal) {
		return nil, ErrUnreachableGoal
	}

	heuristic := func(a, b GridCell) float64 {
		dx, dy := float64(b[0]-a[0]), float64(b[1]-a[1])
		return gomath.Sqrt(dx*dx + dy*dy)
	}

	frontier := &cellHeap{}
	heap.Init(frontier)
	heap.Push(frontier, cellCost{cell: start})

	cameFrom := map[GridCell]GridCell{start: start}
	costSoFar := map[GridCell]float64{start: 0}

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(cellCost).cell
		if current == goal {
			break
		}

		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}

				next := GridCell{current[0] + dx, current[1] + dy}
				if !g.inBounds(next) || g.Blocked(next) {
					continue
				}

				stepCost := 1.0
				if dx != 0 && dy != 0 {
					stepCost = 1.4
				}

				newCost := costSoFar[current] + stepCost
				if prev, seen := costSoFar[next]; !seen || newCost < prev {
					costSoFar[next] = newCost
					heap.Push(frontier, cellCost{
						cell:     next,
						priority: newCost + heuristic(next, goal),
						cost:     newCost,
						seq:      frontier.nextSeq(),
					})
					cameFrom[next] = current
				}
			}
		}
	}

	if _, ok := cameFrom[goal]; !ok {
		return nil, ErrUnreachableGoal
	}

	// Walk the predecessor chain back from the goal.
	var path []GridCell
	for c := goal; ; c = cameFrom[c] {
		path = append(path, c)
		if c == start {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// cellHeap is the A* open set: a min-heap on f = g + h. Ties prefer the
// larger g (deeper nodes, closer to the goal) and then insertion order so
// that the search is deterministic per run.
type cellCost struct {
	cell     GridCell
	priority float64 // f = g + h
	cost     float64 // g
	seq      int
}

type cellHeap struct {
	items []cellCost
	seq   int
}

func (h *cellHeap) nextSeq() int {
	h.seq++
	return h.seq
}

func (h *cellHeap) Len() int { return len(h.items) }

func (h *cellHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if a.cost != b.cost {
		return a.cost > b.cost
	}
	return a.seq < b.seq
}

func (h *cellHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *cellHeap) Push(x any) { h.items = append(h.items, x.(cellCost)) }

func (h *cellHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}
