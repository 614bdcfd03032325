package notation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/jieqi-arena/internal/jieqi"
)

type Highlight struct {
	From jieqi.Square
	To   jieqi.Square
}

type RenderOptions struct {
	LastMove *Highlight
	Caption  string
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board jieqi.Board, opts RenderOptions) ([]byte, error)
}

type svgBoardRenderer struct{}

func NewBoardRenderer() BoardRenderer { return &svgBoardRenderer{} }

const (
	cellSize      = 56
	boardMargin   = 40
	captionHeight = 28
	pieceSize     = 50
)

var (
	captionColor    = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
	captionText     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	highlightColor  = color.NRGBA{R: 255, G: 228, B: 120, A: 120}
	coordinateColor = color.NRGBA{R: 90, G: 58, B: 30, A: 255}
	redInk          = color.NRGBA{R: 178, G: 34, B: 34, A: 255}
	blackInk        = color.NRGBA{R: 29, G: 29, B: 29, A: 255}
	hiddenInk       = color.NRGBA{R: 240, G: 226, B: 200, A: 255}
)

func boardWidth() int  { return cellSize*(jieqi.Files-1) + boardMargin*2 }
func boardHeight() int { return cellSize*(jieqi.Ranks-1) + boardMargin*2 }

// point is the pixel centre of an intersection. Rank 9 is drawn at the top.
func point(sq jieqi.Square) image.Point {
	return image.Point{
		X: boardMargin + sq.File*cellSize,
		Y: captionHeight + boardMargin + (jieqi.Ranks-1-sq.Rank)*cellSize,
	}
}

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, board jieqi.Board, opts RenderOptions) ([]byte, error) {
	width, height := boardWidth(), boardHeight()+captionHeight
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	grid, err := rasterizeSVG(boardSVG(), width, boardHeight())
	if err != nil {
		return nil, err
	}
	imagedraw.Draw(img, image.Rect(0, captionHeight, width, height), grid, image.Point{}, imagedraw.Src)
	drawCaption(img, opts.Caption)
	drawCoordinates(img)

	if hl := opts.LastMove; hl != nil {
		drawSquareOverlay(img, hl.From)
		drawSquareOverlay(img, hl.To)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for rank := 0; rank < jieqi.Ranks; rank++ {
		for file := 0; file < jieqi.Files; file++ {
			sq := jieqi.Square{File: file, Rank: rank}
			p := board.At(sq)
			if p.IsEmpty() {
				continue
			}
			if err := drawPiece(img, p, point(sq)); err != nil {
				return nil, err
			}
		}
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

// boardSVG draws the grid: ranks, files broken at the river, and the two
// palace diagonals.
func boardSVG() []byte {
	w, h := boardWidth(), boardHeight()
	x := func(file int) int { return boardMargin + file*cellSize }
	y := func(rank int) int { return boardMargin + (jieqi.Ranks-1-rank)*cellSize }

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d">`, w, h)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="#e9cfa3"/>`, w, h)
	line := func(x1, y1, x2, y2 int) {
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#5a3a1e" stroke-width="2"/>`, x1, y1, x2, y2)
	}
	for rank := 0; rank < jieqi.Ranks; rank++ {
		line(x(0), y(rank), x(jieqi.Files-1), y(rank))
	}
	for file := 0; file < jieqi.Files; file++ {
		if file == 0 || file == jieqi.Files-1 {
			line(x(file), y(0), x(file), y(jieqi.Ranks-1))
			continue
		}
		line(x(file), y(0), x(file), y(4))
		line(x(file), y(5), x(file), y(9))
	}
	for _, base := range []int{0, 7} {
		line(x(3), y(base), x(5), y(base+2))
		line(x(5), y(base), x(3), y(base+2))
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

func drawPiece(dst *image.RGBA, p jieqi.Piece, center image.Point) error {
	disc, err := renderPieceImage(p, pieceSize)
	if err != nil {
		return err
	}
	half := pieceSize / 2
	rect := image.Rect(center.X-half, center.Y-half, center.X+half, center.Y+half)
	imagedraw.Draw(dst, rect, disc, image.Point{}, imagedraw.Over)

	label := string(p.Char())
	ink := color.Color(redInk)
	switch {
	case p.Hidden:
		label, ink = "?", hiddenInk
	case p.Color == jieqi.Black:
		ink = blackInk
	}
	drawer := &font.Drawer{Dst: dst, Face: basicfont.Face7x13, Src: image.NewUniform(ink)}
	drawCenteredText(drawer, label, center.X, center.Y+basicfont.Face7x13.Ascent/2-1)
	return nil
}

func drawCaption(img *image.RGBA, caption string) {
	imagedraw.Draw(img, image.Rect(0, 0, img.Bounds().Dx(), captionHeight), image.NewUniform(captionColor), image.Point{}, imagedraw.Src)
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return
	}
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(captionText)}
	drawCenteredText(drawer, caption, img.Bounds().Dx()/2, captionHeight/2+basicfont.Face7x13.Ascent/2)
}

func drawCoordinates(img *image.RGBA) {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(coordinateColor)}
	for file := 0; file < jieqi.Files; file++ {
		p := point(jieqi.Square{File: file, Rank: 0})
		drawCenteredText(drawer, string(rune('a'+file)), p.X, p.Y+boardMargin-8)
	}
	for rank := 0; rank < jieqi.Ranks; rank++ {
		p := point(jieqi.Square{File: 0, Rank: rank})
		drawCenteredText(drawer, fmt.Sprint(rank), p.X-boardMargin+12, p.Y+basicfont.Face7x13.Ascent/2)
	}
}

func drawSquareOverlay(img *image.RGBA, sq jieqi.Square) {
	c := point(sq)
	half := cellSize / 2
	rect := image.Rect(c.X-half, c.Y-half, c.X+half, c.Y+half)
	imagedraw.Draw(img, rect, image.NewUniform(highlightColor), image.Point{}, imagedraw.Over)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
