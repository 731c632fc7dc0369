package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"techcal/src-server/grouping"
	"techcal/src-server/metric"
	"techcal/src-server/normalize"
)

const (
	canvasWidth  = 1400
	canvasHeight = 900
	marginX      = 20
	headerY      = 48
	columnGap    = 12
	lineHeight   = 22
)

// FontAssets holds the parsed faces for the image view. Emoji is
// best-effort: nil means titles render with emoji elided.
type FontAssets struct {
	Bold    font.Face
	Regular font.Face
	Emoji   font.Face
}

// LoadFontAssets parses the configured font files. Bold and regular are
// required; a missing or unparseable emoji font is a warning, never an
// error.
func LoadFontAssets(boldPath, regularPath, emojiPath string) (FontAssets, error) {
	var assets FontAssets

	bold, err := loadFace(boldPath, 20)
	if err != nil {
		return assets, fmt.Errorf("LoadFontAssets: bold font: %w", err)
	}
	regular, err := loadFace(regularPath, 15)
	if err != nil {
		return assets, fmt.Errorf("LoadFontAssets: regular font: %w", err)
	}
	assets.Bold = bold
	assets.Regular = regular

	if emojiPath == "" {
		return assets, nil
	}
	emoji, err := loadFace(emojiPath, 15)
	if err != nil {
		slog.Warn("emoji font unavailable, titles will render without emoji", "path", emojiPath, "error", err)
		return assets, nil
	}
	assets.Emoji = emoji
	return assets, nil
}

func loadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Image rasterizes the week onto a fixed-size canvas: bold day headings,
// regular event lines, one column per day. Deterministic for identical
// input and assets.
func Image(days []grouping.Day, weekStart time.Time, assets FontAssets) ([]byte, error) {
	if assets.Bold == nil || assets.Regular == nil {
		return nil, fmt.Errorf("Image: bold and regular faces are required")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	black := image.NewUniform(color.Black)
	gray := image.NewUniform(color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff})

	drawString(canvas, assets.Bold, black, marginX, headerY,
		"Week of "+weekStart.Format("January 2, 2006"), canvasWidth-2*marginX, nil)

	columnWidth := (canvasWidth - 2*marginX - columnGap*(len(days)-1)) / max(len(days), 1)
	for i, day := range days {
		x := marginX + i*(columnWidth+columnGap)
		y := headerY + 50

		drawString(canvas, assets.Bold, black, x, y, day.Date.Format("Mon Jan 2"), columnWidth, nil)
		y += lineHeight + 8

		if !day.HasEvents {
			drawString(canvas, assets.Regular, gray, x, y, "no events", columnWidth, nil)
			continue
		}

		for _, slot := range day.Slots {
			drawString(canvas, assets.Regular, black, x, y, slot.Label, columnWidth, nil)
			y += lineHeight
			for _, event := range slot.Events {
				drawString(canvas, assets.Regular, black, x+14, y, event.DisplayTitle, columnWidth-14, assets.Emoji)
				y += lineHeight
				if y > canvasHeight-lineHeight {
					break
				}
			}
			if y > canvasHeight-lineHeight {
				break
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("Image: %w", err)
	}
	return buf.Bytes(), nil
}

// drawString renders s at (x, y), truncated with an ellipsis past
// maxWidth. Emoji runs use the emoji face when one is supplied and are
// elided otherwise.
func drawString(dst draw.Image, face font.Face, src image.Image, x, y int, s string, maxWidth int, emoji font.Face) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	limit := fixed.I(x + maxWidth)

	flush := func(run string, runFace font.Face) bool {
		if run == "" {
			return true
		}
		drawer.Face = runFace
		if drawer.Dot.X+drawer.MeasureString(run) > limit {
			for len(run) > 0 {
				trimmed := trimLastRune(run)
				if drawer.Dot.X+drawer.MeasureString(trimmed+"…") <= limit {
					drawer.DrawString(trimmed + "…")
					return false
				}
				run = trimmed
			}
			return false
		}
		drawer.DrawString(run)
		return true
	}

	var run strings.Builder
	runIsEmoji := false
	for _, r := range s {
		isEmoji := normalize.IsEmoji(r)
		if isEmoji != runIsEmoji && run.Len() > 0 {
			if !emitRun(flush, run.String(), runIsEmoji, face, emoji) {
				return
			}
			run.Reset()
		}
		runIsEmoji = isEmoji
		run.WriteRune(r)
	}
	emitRun(flush, run.String(), runIsEmoji, face, emoji)
}

func emitRun(flush func(string, font.Face) bool, run string, isEmoji bool, text, emoji font.Face) bool {
	if !isEmoji {
		return flush(run, text)
	}
	if emoji == nil {
		// best-effort enhancement only: no emoji face, no emoji glyphs
		if run != "" {
			metric.EmojiRunsElided.Inc()
		}
		return true
	}
	return flush(run, emoji)
}

func trimLastRune(s string) string {
	runes := []rune(s)
	return string(runes[:len(runes)-1])
}
