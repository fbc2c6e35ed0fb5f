package audio

import (
	"sync"
	"time"
)

// Driver renders the graph at wall-clock pace for realtime playback.
type Driver struct {
	g        *Graph
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewDriver(g *Graph, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Driver{g: g, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.run()
}

func (d *Driver) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	base := d.g.CurrentTime()
	start := time.Now()
	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			if d.g.Closed() {
				return
			}
			d.g.RenderUntil(base + now.Sub(start))
		}
	}
}

// Stop halts rendering and waits for the loop to exit. Safe to call twice.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stop)
	started := d.started
	d.mu.Unlock()
	if started {
		<-d.done
	}
}
