// Package hexmap implements axial hex-grid geometry and pathfinding for the
// battle maps. Coordinates are axial (q, r) with the implicit cube coordinate
// s = -q - r.
package hexmap

import (
	"fmt"
	"math"
)

// Hex is an axial coordinate. Comparable, so it works as a map key.
type Hex struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the derived cube coordinate.
func (h Hex) S() int { return -h.Q - h.R }

// Key renders the coordinate in the "q,r" form used by empire hex maps.
func (h Hex) Key() string { return fmt.Sprintf("%d,%d", h.Q, h.R) }

// ParseKey parses the "q,r" form produced by Key.
func ParseKey(s string) (Hex, error) {
	var h Hex
	if _, err := fmt.Sscanf(s, "%d,%d", &h.Q, &h.R); err != nil {
		return Hex{}, fmt.Errorf("parse hex key %q: %w", s, err)
	}
	return h, nil
}

// neighborOffsets is the fixed neighbour order. BFS reproducibility depends
// on this order never changing.
var neighborOffsets = [6]Hex{
	{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1},
}

// Neighbors returns the six adjacent coordinates in the fixed order.
func (h Hex) Neighbors() [6]Hex {
	var out [6]Hex
	for i, d := range neighborOffsets {
		out[i] = Hex{h.Q + d.Q, h.R + d.R}
	}
	return out
}

// DistanceTo returns the hex distance max(|dq|, |dr|, |ds|).
func (h Hex) DistanceTo(o Hex) int {
	dq := abs(h.Q - o.Q)
	dr := abs(h.R - o.R)
	ds := abs(h.S() - o.S())
	return max(dq, max(dr, ds))
}

// Ring returns the 6*r cells at exactly distance r from center. r=0 returns
// just the center.
func Ring(center Hex, r int) []Hex {
	if r <= 0 {
		return []Hex{center}
	}
	out := make([]Hex, 0, 6*r)
	// Walk to the ring start, then trace each of the six edges.
	cur := Hex{center.Q + neighborOffsets[4].Q*r, center.R + neighborOffsets[4].R*r}
	for side := 0; side < 6; side++ {
		for step := 0; step < r; step++ {
			out = append(out, cur)
			d := neighborOffsets[side]
			cur = Hex{cur.Q + d.Q, cur.R + d.R}
		}
	}
	return out
}

// Disk returns the 3r²+3r+1 cells within distance r of center.
func Disk(center Hex, r int) []Hex {
	out := make([]Hex, 0, 3*r*r+3*r+1)
	for q := -r; q <= r; q++ {
		lo := max(-r, -q-r)
		hi := min(r, -q+r)
		for rr := lo; rr <= hi; rr++ {
			out = append(out, Hex{center.Q + q, center.R + rr})
		}
	}
	return out
}

// Line returns the cube-rounded interpolation from a to b, inclusive.
func Line(a, b Hex) []Hex {
	n := a.DistanceTo(b)
	if n == 0 {
		return []Hex{a}
	}
	out := make([]Hex, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		q := lerp(float64(a.Q), float64(b.Q), t)
		r := lerp(float64(a.R), float64(b.R), t)
		out = append(out, roundCube(q, r))
	}
	return out
}

// Lerp along a path of hexes: progress 0 is the first hex, 1 the last.
// Segments between consecutive hexes are weighted equally.
func Interpolate(path []Hex, progress float64) (float64, float64) {
	if len(path) == 0 {
		return 0, 0
	}
	if len(path) == 1 || progress <= 0 {
		return float64(path[0].Q), float64(path[0].R)
	}
	if progress >= 1 {
		last := path[len(path)-1]
		return float64(last.Q), float64(last.R)
	}
	scaled := progress * float64(len(path)-1)
	i := int(scaled)
	frac := scaled - float64(i)
	a, b := path[i], path[i+1]
	return lerp(float64(a.Q), float64(b.Q), frac), lerp(float64(a.R), float64(b.R), frac)
}

// InterpolateHex rounds Interpolate back onto the grid, for range checks.
func InterpolateHex(path []Hex, progress float64) Hex {
	q, r := Interpolate(path, progress)
	return roundCube(q, r)
}

func roundCube(q, r float64) Hex {
	s := -q - r
	rq := math.Round(q)
	rr := math.Round(r)
	rs := math.Round(s)

	dq := math.Abs(rq - q)
	dr := math.Abs(rr - r)
	ds := math.Abs(rs - s)

	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return Hex{int(rq), int(rr)}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
