// Package plot renders training curves, confusion heatmaps and audio
// feature images to PNG.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	trainBlue = color.RGBA{31, 119, 180, 255}
	testOrg   = color.RGBA{255, 127, 14, 255}
	waveBlue  = color.RGBA{90, 140, 200, 255}
)

// render draws onto a width × height pixel canvas and writes it to path as
// PNG, creating parent directories.
func render(path string, width, height int, paint func(draw.Canvas)) error {
	img := vgimg.NewWith(
		vgimg.UseWH(vg.Length(width), vg.Length(height)),
		vgimg.UseDPI(72),
	)
	paint(draw.New(img))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return f.Close()
}
