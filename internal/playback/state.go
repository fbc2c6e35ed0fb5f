package playback

import (
	"image"
	"time"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/story"
)

type Phase int

const (
	PhaseCover Phase = iota
	PhasePlaying
	PhaseTransitioning
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseCover:
		return "cover"
	case PhasePlaying:
		return "playing"
	case PhaseTransitioning:
		return "transitioning"
	case PhaseComplete:
		return "complete"
	}
	return "unknown"
}

// Scene is one scene of a ready story with its decoded media.
type Scene struct {
	Text           string
	TranslatedText string
	// Image is nil when the still failed to load; the frame is drawn without it.
	Image     image.Image
	Narration *audio.Buffer
	Visual    story.VisualEffect
	Sound     story.SoundEffect
}

// Meta identifies the story being played.
type Meta struct {
	ID        string
	CreatedAt time.Time
	Title     string
	Cover     image.Image
}

// Snapshot is a consistent view of the session state. A paused scene is
// PhasePlaying (or PhaseTransitioning) with Playing false.
type Snapshot struct {
	Phase              Phase
	Scene              int
	PrevScene          int
	Playing            bool
	Progress           float64
	Transitioning      bool
	TransitionProgress float64
	SceneStart         time.Duration

	Recording     bool
	ShowSubtitles bool
	SubtitleLang  story.Lang
}

type EventKind int

const (
	EventSceneStarted EventKind = iota
	EventSceneCompleted
	EventTransitionEnded
	EventSequenceComplete
	EventRecordingStarted
	EventRecordingFinished
	EventRecordingCanceled
)

func (k EventKind) String() string {
	return [...]string{
		"scene-started",
		"scene-completed",
		"transition-ended",
		"sequence-complete",
		"recording-started",
		"recording-finished",
		"recording-canceled",
	}[k]
}

// Event is reported through Options.OnEvent. At is the loop clock.
type Event struct {
	Kind  EventKind
	Scene int
	At    time.Duration
}
