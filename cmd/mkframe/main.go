//go:build !tinygo

// Command mkframe converts an image, or a generated test card, into a raw
// 320x240 frame for the VGA driver: one byte per pixel with the 3-bit color
// index packed into both halves.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"picovga/vga"
)

const defaultFramePath = "frame.bin"

func main() {
	var inPath string
	var outPath string
	var previewPath string
	var card bool
	var rgb bool
	flag.StringVar(&inPath, "in", "", "Source image (PNG, JPEG or GIF).")
	flag.BoolVar(&card, "card", false, "Render a test card instead of reading -in.")
	flag.StringVar(&outPath, "out", defaultFramePath, "Output frame path.")
	flag.StringVar(&previewPath, "preview", "", "Also write the quantized frame as a PNG.")
	flag.BoolVar(&rgb, "rgb", false, "Color pins wired red first (default blue first).")
	flag.Parse()

	if inPath == "" && !card {
		fmt.Fprintln(os.Stderr, "error: -in or -card is required")
		os.Exit(2)
	}
	if outPath == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}

	order := vga.BGR
	if rgb {
		order = vga.RGB
	}
	if err := run(inPath, card, outPath, previewPath, order); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(inPath string, card bool, outPath, previewPath string, order vga.BitOrder) error {
	var src image.Image
	if card {
		src = testCard()
	} else {
		img, err := decodeImage(inPath)
		if err != nil {
			return err
		}
		src = img
	}

	frame := quantize(scale(src), order)
	if err := os.WriteFile(outPath, frame, 0o644); err != nil {
		return fmt.Errorf("write frame %q: %w", outPath, err)
	}
	if previewPath != "" {
		if err := writePreview(previewPath, frame, order); err != nil {
			return err
		}
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %q: %w", path, err)
	}
	return img, nil
}

// scale stretches src to the frame size.
func scale(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, vga.Width, vga.Height))
	if src.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// quantize thresholds each channel of a frame-sized image into packed color
// indices.
func quantize(img *image.RGBA, order vga.BitOrder) []byte {
	frame := make([]byte, vga.FrameLen)
	b := img.Bounds()
	for y := 0; y < vga.Height; y++ {
		for x := 0; x < vga.Width; x++ {
			frame[y*vga.Width+x] = vga.Pack(order.Nearest(img.RGBAAt(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return frame
}

// testCard draws color bars over the top two thirds and a white circle and
// caption below.
func testCard() image.Image {
	const w, h = float64(vga.Width), float64(vga.Height)
	dc := gg.NewContext(vga.Width, vga.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	bars := [][3]float64{
		{1, 1, 1}, {1, 1, 0}, {0, 1, 1}, {0, 1, 0},
		{1, 0, 1}, {1, 0, 0}, {0, 0, 1}, {0, 0, 0},
	}
	barW := w / float64(len(bars))
	for i, c := range bars {
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawRectangle(float64(i)*barW, 0, barW, h*2/3)
		dc.Fill()
	}

	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(2)
	dc.DrawCircle(w/4, h*5/6, h/8)
	dc.Stroke()
	dc.DrawStringAnchored(fmt.Sprintf("picovga %dx%d", vga.Width, vga.Height), w*5/8, h*5/6, 0.5, 0.5)
	return dc.Image()
}

func writePreview(path string, frame []byte, order vga.BitOrder) error {
	pal := vga.Palette(order)
	img := image.NewRGBA(image.Rect(0, 0, vga.Width, vga.Height))
	for i, v := range frame {
		img.SetRGBA(i%vga.Width, i/vga.Width, pal[v&7])
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview %q: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode preview %q: %w", path, err)
	}
	return f.Close()
}
