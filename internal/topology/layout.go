package topology

import (
	"math"
	"math/rand"
	"regexp"
)

var addrRe = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

const (
	defaultCanvas     = 1000.0
	defaultIterations = 300
	defaultSeed       = 1

	circleRadiusRatio = 0.35
	stepScale         = 0.1
)

// layout computes node positions with a Fruchterman-Reingold style force
// simulation. Every node pair repels with force k²/d, every edge attracts its
// endpoints with force d²/k, and a temperature term cools linearly to zero
// over the iteration budget, damping displacement as the layout settles.
// Randomness (only used to separate coincident nodes) comes from a fixed-seed
// source, so the layout is reproducible for identical input graphs.
func (g *Graph) layout(width, height float64, iterations int, seed int64) {
	n := len(g.Nodes)
	if n == 0 {
		return
	}
	rng := rand.New(rand.NewSource(seed))

	// Deterministic initial placement evenly around a circle.
	cx, cy := width/2, height/2
	radius := math.Min(width, height) * circleRadiusRatio
	for i := range g.Nodes {
		angle := 2 * math.Pi * float64(i) / float64(n)
		g.Nodes[i].X = cx + radius*math.Cos(angle)
		g.Nodes[i].Y = cy + radius*math.Sin(angle)
	}
	if n == 1 {
		return
	}

	idx := make(map[string]int, n)
	for i, node := range g.Nodes {
		idx[node.ID] = i
	}

	area := width * height
	k := math.Sqrt(area / float64(n))
	maxTemp := math.Min(width, height) / 10

	dispX := make([]float64, n)
	dispY := make([]float64, n)

	for iter := 0; iter < iterations; iter++ {
		for i := range dispX {
			dispX[i], dispY[i] = 0, 0
		}

		// Pairwise repulsion.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := g.Nodes[i].X - g.Nodes[j].X
				dy := g.Nodes[i].Y - g.Nodes[j].Y
				dist := math.Hypot(dx, dy)
				if dist < 1e-9 {
					// Coincident nodes get a seeded nudge apart.
					dx = rng.Float64() - 0.5
					dy = rng.Float64() - 0.5
					dist = math.Hypot(dx, dy)
				}
				force := k * k / dist
				ux, uy := dx/dist, dy/dist
				dispX[i] += ux * force
				dispY[i] += uy * force
				dispX[j] -= ux * force
				dispY[j] -= uy * force
			}
		}

		// Edge attraction.
		for _, e := range g.Edges {
			i, iOK := idx[e.From]
			j, jOK := idx[e.To]
			if !iOK || !jOK {
				continue
			}
			dx := g.Nodes[i].X - g.Nodes[j].X
			dy := g.Nodes[i].Y - g.Nodes[j].Y
			dist := math.Hypot(dx, dy)
			if dist < 1e-9 {
				continue
			}
			force := dist * dist / k
			ux, uy := dx/dist, dy/dist
			dispX[i] -= ux * force
			dispY[i] -= uy * force
			dispX[j] += ux * force
			dispY[j] += uy * force
		}

		// Linear cooling; the temperature acts as a damping signal through
		// the displacement scale rather than a hard per-step cap.
		temp := maxTemp * (1 - float64(iter)/float64(iterations))
		for i := range g.Nodes {
			mass := g.Nodes[i].Mass
			if mass <= 0 {
				mass = 1
			}
			scale := stepScale * temp / maxTemp / mass
			g.Nodes[i].X += dispX[i] * scale
			g.Nodes[i].Y += dispY[i] * scale
		}
	}

	for i := range g.Nodes {
		g.Nodes[i].X = clamp(g.Nodes[i].X, 0, width)
		g.Nodes[i].Y = clamp(g.Nodes[i].Y, 0, height)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
