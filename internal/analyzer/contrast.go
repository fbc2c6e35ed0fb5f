package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ContrastDetector finds regions with strong local contrast: Sobel edges are
// thresholded, grown by a square dilation and grouped into 4-connected
// components. Each component becomes a Block whose confidence is the share
// of its bounding box covered by edge pixels.
type ContrastDetector struct {
	MinBlockArea  int     // pixels²
	EdgeThreshold float64 // Sobel gradient magnitude
	DilateRadius  int
	DilatePasses  int
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500,
		EdgeThreshold: 30.0,
		DilateRadius:  2,
		DilatePasses:  2,
	}
}

// mask is a binary image stored row-major over its bounds.
type mask struct {
	r   image.Rectangle
	w   int
	bit []bool
}

func newMask(r image.Rectangle) *mask {
	return &mask{r: r, w: r.Dx(), bit: make([]bool, r.Dx()*r.Dy())}
}

func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	gray := grayOf(img)
	edges := sobel(gray, d.EdgeThreshold)
	grown := edges
	for i := 0; i < d.DilatePasses; i++ {
		grown = dilate(grown, d.DilateRadius)
	}

	var blocks []Block
	for _, c := range components(grown) {
		rect := c.rect.Add(gray.Rect.Min)
		area := rect.Dx() * rect.Dy()
		if area < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{
			Rect:       rect,
			Confidence: math.Min(1, float64(countIn(edges, c.rect))/float64(area)*4),
		})
	}
	return blocks, nil
}

func grayOf(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Rect, img, img.Bounds().Min, draw.Src)
	return g
}

func sobel(g *image.Gray, threshold float64) *mask {
	m := newMask(g.Rect)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	px := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }
	limit := threshold * threshold
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			tl, tc, tr := px(x-1, y-1), px(x, y-1), px(x+1, y-1)
			ml, mr := px(x-1, y), px(x+1, y)
			bl, bc, br := px(x-1, y+1), px(x, y+1), px(x+1, y+1)
			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)
			m.bit[y*w+x] = gx*gx+gy*gy > limit
		}
	}
	return m
}

// dilate grows set pixels by radius in both axes. The square kernel is
// separable, so it runs as a horizontal then a vertical pass.
func dilate(src *mask, radius int) *mask {
	w, h := src.w, src.r.Dy()
	horiz := newMask(src.r)
	for y := 0; y < h; y++ {
		row := src.bit[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			for k := max(0, x-radius); k <= min(w-1, x+radius); k++ {
				if row[k] {
					horiz.bit[y*w+x] = true
					break
				}
			}
		}
	}
	out := newMask(src.r)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			for k := max(0, y-radius); k <= min(h-1, y+radius); k++ {
				if horiz.bit[k*w+x] {
					out.bit[y*w+x] = true
					break
				}
			}
		}
	}
	return out
}

type component struct {
	rect image.Rectangle // relative to the mask origin
}

func components(m *mask) []component {
	w, h := m.w, m.r.Dy()
	seen := make([]bool, len(m.bit))
	var out []component
	var queue []int
	for start, on := range m.bit {
		if !on || seen[start] {
			continue
		}
		seen[start] = true
		queue = append(queue[:0], start)
		minX, minY := w, h
		maxX, maxY := -1, -1
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= len(m.bit) || seen[n] || !m.bit[n] {
					continue
				}
				// no wrap across rows
				if (n == i-1 || n == i+1) && n/w != y {
					continue
				}
				seen[n] = true
				queue = append(queue, n)
			}
		}
		out = append(out, component{rect: image.Rect(minX, minY, maxX+1, maxY+1)})
	}
	return out
}

func countIn(m *mask, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for _, on := range m.bit[y*m.w+r.Min.X : y*m.w+r.Max.X] {
			if on {
				n++
			}
		}
	}
	return n
}
