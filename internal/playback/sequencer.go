package playback

import (
	"errors"
	"image"
	"log"
	"time"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/compositor"
	"github.com/ivlev/storyreel/internal/story"
)

// after schedules fn on the loop clock. Timers fire inside Frame.
func (p *Player) after(d time.Duration, fn func()) {
	p.timers = append(p.timers, timer{at: p.now + d, fn: fn})
}

// runTimers fires due timers in deadline order. A timer may schedule or
// drop others.
func (p *Player) runTimers() {
	for {
		idx := -1
		for i, t := range p.timers {
			if t.at <= p.now && (idx < 0 || t.at < p.timers[idx].at) {
				idx = i
			}
		}
		if idx < 0 {
			return
		}
		t := p.timers[idx]
		p.timers = append(p.timers[:idx], p.timers[idx+1:]...)
		t.fn()
	}
}

func (p *Player) reset(cancelCapture bool) {
	p.timers = nil
	p.tracking = false
	p.awaiting = false
	p.pausedAt = 0
	p.graph.StopNarration()
	p.graph.PauseBeds()
	p.state = Snapshot{Phase: PhaseCover, PrevScene: -1}
	p.sceneStart = p.now
	if cancelCapture && p.capture != nil && p.capture.Active() {
		p.capture.Cancel()
		log.Printf("[!] Запись отменена")
		p.emit(EventRecordingCanceled, 0)
	}
}

func (p *Player) beginFromCover() {
	p.state = Snapshot{
		Phase:         PhaseTransitioning,
		Scene:         0,
		PrevScene:     -1,
		Playing:       true,
		Transitioning: true,
	}
	p.sceneStart = p.now
	p.pausedAt = 0
	p.graph.SetAmbientSoundEffect(p.scenes[0].Sound)
	p.graph.ResumeBeds()
	p.after(p.cfg.PlayDelay, func() { p.startNarration(0, 0) })
}

func (p *Player) startNarration(i int, offset time.Duration) {
	start, err := p.graph.PlayNarration(i, offset)
	if err != nil {
		if !errors.Is(err, audio.ErrClosed) {
			log.Printf("[!] Не удалось запустить озвучку сцены %d: %v", i+1, err)
		}
		return
	}
	p.narrStart, p.narrOffset = start, offset
	p.tracking = true
	if offset == 0 {
		p.emit(EventSceneStarted, i)
	}
}

func (p *Player) elapsed() time.Duration {
	return p.narrOffset + p.graph.CurrentTime() - p.narrStart
}

// track updates progress from the audio clock. Progress never decreases
// within a scene and only reaches 1 when the narration is done.
func (p *Player) track() {
	if !p.tracking {
		return
	}
	dur := p.graph.NarrationDuration(p.state.Scene)
	e := p.elapsed()
	if e >= dur {
		p.sceneComplete()
		return
	}
	if pr := float64(e) / float64(dur); pr > p.state.Progress {
		p.state.Progress = pr
	}
}

func (p *Player) sceneComplete() {
	i := p.state.Scene
	p.tracking = false
	p.graph.StopNarration()
	p.state.Progress = 1
	p.emit(EventSceneCompleted, i)

	if i < len(p.scenes)-1 {
		p.awaiting = true
		p.after(p.cfg.SceneAdvanceDelay, p.advance)
		return
	}

	p.state.Phase = PhaseComplete
	p.state.Playing = false
	p.graph.PauseBeds()
	p.emit(EventSequenceComplete, i)
	if p.capture != nil && p.capture.Active() {
		p.after(p.cfg.CaptureTrailing, func() {
			if p.capture != nil && p.capture.Active() {
				p.finishRecording()
			}
		})
	}
}

func (p *Player) advance() {
	p.awaiting = false
	prev := p.state.Scene
	next := prev + 1
	p.state.PrevScene = prev
	p.state.Scene = next
	p.state.Phase = PhaseTransitioning
	p.state.Transitioning = true
	p.state.TransitionProgress = 0
	p.state.Progress = 0
	p.pausedAt = 0
	p.graph.SetAmbientSoundEffect(p.scenes[next].Sound)
	p.startNarration(next, 0)
}

func (p *Player) advanceTransition(dt time.Duration) {
	if !p.state.Transitioning {
		return
	}
	p.state.TransitionProgress += float64(dt) / float64(p.cfg.TransitionDuration)
	if p.state.TransitionProgress < 1 {
		return
	}
	p.state.TransitionProgress = 1
	p.state.Transitioning = false
	p.sceneStart = p.now
	if p.state.Phase == PhaseTransitioning {
		p.state.Phase = PhasePlaying
	}
	p.emit(EventTransitionEnded, p.state.Scene)
}

func (p *Player) frameState() compositor.FrameState {
	st := p.state
	fs := compositor.FrameState{
		Cover:              st.Phase == PhaseCover,
		Title:              p.meta.Title,
		Scene:              st.Scene,
		PrevScene:          st.PrevScene,
		Transitioning:      st.Transitioning,
		TransitionProgress: st.TransitionProgress,
		SceneElapsed:       p.now - p.sceneStart,
		Playing:            st.Playing,
		Progress:           st.Progress,
		ShowSubtitles:      p.subtitles,
	}
	if p.subtitles && st.Scene >= 0 && st.Scene < len(p.scenes) {
		sc := p.scenes[st.Scene]
		fs.Subtitle = story.SubtitleText(story.SceneScript{Text: sc.Text, TranslatedText: sc.TranslatedText}, p.lang)
	}
	return fs
}

// Frame advances the session to now on the loop clock and draws one frame.
// Outside of Run the audio graph is rendered up to now first, so the audio
// clock moves in lockstep with the frames. The returned image is reused by
// the next call; nil is returned once the player is closed.
func (p *Player) Frame(now time.Duration) *image.RGBA {
	p.mu.Lock()
	defer p.unlock()
	if p.closed {
		return nil
	}
	dt := now - p.now
	if dt < 0 {
		dt = 0
	}
	p.now = now
	if !p.realtime {
		p.graph.RenderUntil(now)
	}

	p.runTimers()
	p.advanceTransition(dt)
	p.track()

	frame := p.comp.Draw(p.frameState())
	p.captureFrame(frame)
	return frame
}

// captureFrame hands the recorder every frame due on the loop clock since
// recording started. When the loop falls behind, the frame is repeated for
// each missed slot so video time keeps pace with the captured audio.
func (p *Player) captureFrame(frame *image.RGBA) {
	if p.capture == nil {
		return
	}
	due := int((p.now - p.capStart) / p.cfg.FrameInterval())
	for p.capFrames < due && p.capture.Active() {
		if err := p.capture.CaptureFrame(frame); err != nil {
			log.Printf("[!] Ошибка записи кадра: %v", err)
			p.exportDone(nil, err)
			return
		}
		p.capFrames++
	}
}
