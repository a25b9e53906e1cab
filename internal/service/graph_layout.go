package service

import (
	"math"
	"math/rand/v2"

	"github.com/phenodx-server/internal/domain"
)

const (
	linkDistance  = 150.0
	chargeForce   = -500.0
	collidePad    = 10.0
	velocityDecay = 0.6
	alphaMin      = 0.001
)

type body struct {
	x, y, vx, vy float64
	radius       float64
	fixed        *domain.Point
}

// layout seeds node positions and relaxes them with a velocity Verlet
// force simulation: many-body repulsion, link springs, centering and
// collision.
func (b *GraphBuilder) layout(g *domain.Graph, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	cx, cy := b.config.Width/2, b.config.Height/2
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.FixedPosition != nil {
			n.X, n.Y = n.FixedPosition.X, n.FixedPosition.Y
			continue
		}
		n.X = cx + (rng.Float64()-0.5)*b.config.Width/2
		n.Y = cy + (rng.Float64()-0.5)*b.config.Height/2
	}
	b.relax(g, b.config.Ticks)
}

func (b *GraphBuilder) relax(g *domain.Graph, ticks int) {
	if len(g.Nodes) == 0 || ticks <= 0 {
		return
	}

	bodies := make([]body, len(g.Nodes))
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		bodies[i] = body{x: n.X, y: n.Y, radius: n.Radius, fixed: n.FixedPosition}
		index[n.ID] = i
	}

	type link struct {
		s, t     int
		strength float64
		bias     float64
	}
	degree := make([]int, len(bodies))
	links := make([]link, 0, len(g.Edges))
	for _, e := range g.Edges {
		s, okS := index[e.Source]
		t, okT := index[e.Target]
		if !okS || !okT {
			continue
		}
		degree[s]++
		degree[t]++
		links = append(links, link{s: s, t: t})
	}
	for i := range links {
		ds, dt := degree[links[i].s], degree[links[i].t]
		links[i].strength = 1 / float64(min(ds, dt))
		links[i].bias = float64(ds) / float64(ds+dt)
	}

	alpha := 1.0
	alphaDecay := 1 - math.Pow(alphaMin, 1/float64(b.config.Ticks))
	cx, cy := b.config.Width/2, b.config.Height/2

	for tick := 0; tick < ticks; tick++ {
		alpha += (0 - alpha) * alphaDecay

		// Links
		for _, l := range links {
			s, t := &bodies[l.s], &bodies[l.t]
			dx := t.x + t.vx - s.x - s.vx
			dy := t.y + t.vy - s.y - s.vy
			dist := math.Hypot(dx, dy)
			if dist == 0 {
				dx, dy, dist = 1e-6, 1e-6, math.Sqrt2*1e-6
			}
			k := (dist - linkDistance) / dist * alpha * l.strength
			dx, dy = dx*k, dy*k
			t.vx -= dx * l.bias
			t.vy -= dy * l.bias
			s.vx += dx * (1 - l.bias)
			s.vy += dy * (1 - l.bias)
		}

		// Many-body repulsion
		for i := range bodies {
			for j := range bodies {
				if i == j {
					continue
				}
				dx := bodies[j].x - bodies[i].x
				dy := bodies[j].y - bodies[i].y
				d2 := dx*dx + dy*dy
				if d2 < 1 {
					d2 = 1
				}
				w := chargeForce * alpha / d2
				bodies[i].vx += dx * w
				bodies[i].vy += dy * w
			}
		}

		// Collision
		for i := range bodies {
			for j := i + 1; j < len(bodies); j++ {
				a, c := &bodies[i], &bodies[j]
				ra, rc := a.radius+collidePad, c.radius+collidePad
				dx := c.x + c.vx - a.x - a.vx
				dy := c.y + c.vy - a.y - a.vy
				dist := math.Hypot(dx, dy)
				r := ra + rc
				if dist >= r {
					continue
				}
				if dist == 0 {
					dx, dist = 1e-6, 1e-6
				}
				push := (r - dist) / dist * 0.5
				wa := rc * rc / (ra*ra + rc*rc)
				a.vx -= dx * push * wa
				a.vy -= dy * push * wa
				c.vx += dx * push * (1 - wa)
				c.vy += dy * push * (1 - wa)
			}
		}

		// Integrate
		for i := range bodies {
			p := &bodies[i]
			if p.fixed != nil {
				p.x, p.y, p.vx, p.vy = p.fixed.X, p.fixed.Y, 0, 0
				continue
			}
			p.vx *= velocityDecay
			p.vy *= velocityDecay
			p.x += p.vx
			p.y += p.vy
		}

		// Centering shifts free nodes so the mean sits at the canvas center
		var sx, sy float64
		free := 0
		for _, p := range bodies {
			if p.fixed == nil {
				sx += p.x
				sy += p.y
				free++
			}
		}
		if free > 0 {
			sx, sy = sx/float64(free)-cx, sy/float64(free)-cy
			for i := range bodies {
				if bodies[i].fixed == nil {
					bodies[i].x -= sx
					bodies[i].y -= sy
				}
			}
		}
	}

	for i := range g.Nodes {
		g.Nodes[i].X = bodies[i].x
		g.Nodes[i].Y = bodies[i].y
	}
}
