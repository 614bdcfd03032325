package notation

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/jieqi-arena/internal/jieqi"
)

// Discs only differ by colour and face, so the kind is not part of the key.
type pieceCacheKey struct {
	color  jieqi.Color
	hidden bool
	size   int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(p jieqi.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{color: p.Color, hidden: p.Hidden, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	img, err := rasterizeSVG(pieceSVG(p), size, size)
	if err != nil {
		return nil, fmt.Errorf("render piece %c: %w", p.Char(), err)
	}

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}

func pieceSVG(p jieqi.Piece) []byte {
	face, ring := "#f6e7c8", "#b22222"
	switch {
	case p.Hidden:
		face, ring = "#6b4f35", "#3b2a1a"
	case p.Color == jieqi.Black:
		ring = "#1d1d1d"
	}
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">`+
		`<circle cx="32" cy="32" r="29" fill="%s" stroke="%s" stroke-width="4"/>`+
		`<circle cx="32" cy="32" r="22" fill="none" stroke="%s" stroke-width="1.5"/>`+
		`</svg>`, face, ring, ring))
}

func rasterizeSVG(svg []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}
