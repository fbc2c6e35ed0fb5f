package system

import (
	"image"
	"sync"
)

// FramePool recycles RGBA images by bounds. Frames copied for the encoder
// pipe and the compositor's blend scratch both come from here.
type FramePool struct {
	sizes sync.Map // image.Rectangle -> *sync.Pool
}

var frames FramePool

func GetImage(r image.Rectangle) *image.RGBA { return frames.Get(r) }

func PutImage(img *image.RGBA) { frames.Put(img) }

func (p *FramePool) pool(r image.Rectangle) *sync.Pool {
	if v, ok := p.sizes.Load(r); ok {
		return v.(*sync.Pool)
	}
	v, _ := p.sizes.LoadOrStore(r, &sync.Pool{New: func() any { return image.NewRGBA(r) }})
	return v.(*sync.Pool)
}

// Get returns an image with bounds r. Its pixels are whatever the last
// user left.
func (p *FramePool) Get(r image.Rectangle) *image.RGBA {
	return p.pool(r).Get().(*image.RGBA)
}

// Put hands img back. Sizes that were never requested are dropped.
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	if v, ok := p.sizes.Load(img.Rect); ok {
		v.(*sync.Pool).Put(img)
	}
}

var bytePool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 8192)
		return &b
	},
}

// GetBytes возвращает буфер длиной n для упаковки аудио-сэмплов.
func GetBytes(n int) *[]byte {
	bp := bytePool.Get().(*[]byte)
	if cap(*bp) < n {
		*bp = make([]byte, n)
	}
	*bp = (*bp)[:n]
	return bp
}

func PutBytes(bp *[]byte) {
	if bp == nil {
		return
	}
	bytePool.Put(bp)
}
