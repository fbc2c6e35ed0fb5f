package playback

import (
	"context"
	"time"

	"github.com/ivlev/storyreel/internal/audio"
)

// Run drives the session in real time until ctx is done or the player is
// closed. Audio is rendered at wall-clock pace by an audio.Driver.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return audio.ErrClosed
	}
	if p.loopCancel != nil {
		p.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.loopCancel, p.loopDone = cancel, done
	p.realtime = true
	base := p.now
	p.mu.Unlock()

	defer close(done)
	defer cancel()

	drv := audio.NewDriver(p.graph, 5*time.Millisecond)
	drv.Start()
	defer drv.Stop()

	ticker := time.NewTicker(p.cfg.FrameInterval())
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			// ticks dropped during a slow frame are made up by the capture
			// clock, so read the time now rather than the tick's
			frame := p.Frame(base + time.Since(start))
			if frame == nil {
				return nil
			}
			if p.opts.OnFrame != nil {
				p.opts.OnFrame(frame)
			}
		}
	}
}
