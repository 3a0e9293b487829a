package world

import (
	"slices"

	"grapple-arena/internal/geom"
)

// GridCells is the number of broad-phase cells along each axis of the unit square
const GridCells = 16

// lineGrid is a fixed-size grid over the unit square for broad-phase line queries.
// Each cell holds the indices of every line whose padded bounds overlap it.
type lineGrid struct {
	cells [GridCells * GridCells][]int
}

func cellRange(r geom.Rect) (minCX, minCY, maxCX, maxCY int) {
	minCX = clampCell(int(r.X * GridCells))
	maxCX = clampCell(int((r.X + r.W) * GridCells))
	minCY = clampCell(int(r.Y * GridCells))
	maxCY = clampCell(int((r.Y + r.H) * GridCells))
	return
}

func clampCell(c int) int {
	if c < 0 {
		return 0
	}
	if c >= GridCells {
		return GridCells - 1
	}
	return c
}

// insert adds a line index to all cells overlapping its bounding box
func (g *lineGrid) insert(bounds geom.Rect, idx int) {
	minCX, minCY, maxCX, maxCY := cellRange(bounds)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			c := cy*GridCells + cx
			g.cells[c] = append(g.cells[c], idx)
		}
	}
}

// queryBuf appends the indices of every line near r to buf, sorted and without duplicates
func (g *lineGrid) queryBuf(r geom.Rect, buf []int) []int {
	minCX, minCY, maxCX, maxCY := cellRange(r)
	start := len(buf)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			buf = append(buf, g.cells[cy*GridCells+cx]...)
		}
	}
	found := buf[start:]
	slices.Sort(found)
	return append(buf[:start], slices.Compact(found)...)
}
