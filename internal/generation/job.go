package generation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/ivlev/storyreel/internal/story"
)

// Job is one background pipeline run. A cancelled job discards its result.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	canceled bool
	story    *story.Story
	manifest string
	err      error
}

func Start(ctx context.Context, p *Pipeline, req Request) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer cancel()
		s, m, err := p.Run(ctx, req)
		j.mu.Lock()
		j.story, j.manifest, j.err = s, m, err
		j.mu.Unlock()
	}()
	return j
}

func (j *Job) Cancel() {
	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()
	j.cancel()
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the run ends. A cancelled job reports ErrCanceled even
// if the run managed to finish.
func (j *Job) Wait() (*story.Story, string, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.canceled || errors.Is(j.err, context.Canceled) {
		if j.manifest != "" {
			os.RemoveAll(filepath.Dir(j.manifest))
			j.manifest = ""
		}
		return nil, "", ErrCanceled
	}
	return j.story, j.manifest, j.err
}
