package app

import (
	"fmt"
	"strings"
	"time"
)

type scopeStats struct {
	last    time.Duration
	total   time.Duration
	samples int
}

// Profiler times named CPU scopes of the frame loop. Not safe for concurrent use.
type Profiler struct {
	scopes map[string]*scopeStats
	starts map[string]time.Time
	order  []string
	now    func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		scopes: make(map[string]*scopeStats),
		starts: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	if _, ok := p.scopes[name]; !ok {
		p.scopes[name] = &scopeStats{}
		p.order = append(p.order, name)
	}
	p.starts[name] = p.now()
}

// EndScope records the time since the matching BeginScope. Unmatched calls are ignored.
func (p *Profiler) EndScope(name string) {
	start, ok := p.starts[name]
	if !ok {
		return
	}
	delete(p.starts, name)
	d := p.now().Sub(start)
	s := p.scopes[name]
	s.last = d
	s.total += d
	s.samples++
}

// Scope times fn under name.
func (p *Profiler) Scope(name string, fn func() error) error {
	p.BeginScope(name)
	defer p.EndScope(name)
	return fn()
}

func (p *Profiler) Last(name string) time.Duration {
	if s, ok := p.scopes[name]; ok {
		return s.last
	}
	return 0
}

func (p *Profiler) Average(name string) time.Duration {
	s, ok := p.scopes[name]
	if !ok || s.samples == 0 {
		return 0
	}
	return s.total / time.Duration(s.samples)
}

// Reset clears accumulated samples and keeps the scope order.
func (p *Profiler) Reset() {
	for _, s := range p.scopes {
		*s = scopeStats{}
	}
}

func (p *Profiler) Stats() string {
	var sb strings.Builder
	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.order {
		s := p.scopes[name]
		fmt.Fprintf(&sb, "  %-10s: %6.2f ms (avg %6.2f ms, n=%d)\n", name,
			ms(s.last), ms(p.Average(name)), s.samples)
	}
	return sb.String()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
