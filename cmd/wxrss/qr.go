package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"golang.org/x/term"
)

const qrTermWidth = 40

var qrChars = []rune(" ░▒▓█")

// displayQRCode renders the captured QR code PNG as block characters when
// stdout is a terminal; otherwise it just points at the image file.
func displayQRCode(path string) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println("QR code saved to:", path)
		return
	}

	art, err := qrToASCII(path)
	if err != nil {
		fmt.Println("QR code saved to:", path)
		return
	}

	divider := strings.Repeat("=", qrTermWidth*2)
	fmt.Println(divider)
	fmt.Println("Scan this QR code with the WeChat app to log in:")
	fmt.Println(divider)
	fmt.Print(art)
	fmt.Println(divider)
	fmt.Println("Image file:", path)
}

// qrToASCII downsamples the PNG to terminal-sized grayscale blocks. Each
// pixel prints as two characters to keep the square aspect ratio.
func qrToASCII(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return "", err
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return "", fmt.Errorf("empty image")
	}

	// Terminal cells are about twice as tall as wide.
	width := qrTermWidth
	height := srcH * width / srcW / 2
	if height == 0 {
		height = 1
	}

	var b strings.Builder
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			lum := sampleLuminance(img, bounds, x, y, width, height)
			// Dark pixels get dense characters.
			idx := int((255 - lum) * uint32(len(qrChars)) / 256)
			if idx >= len(qrChars) {
				idx = len(qrChars) - 1
			}
			b.WriteRune(qrChars[idx])
			b.WriteRune(qrChars[idx])
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func sampleLuminance(img image.Image, bounds image.Rectangle, x, y, width, height int) uint32 {
	srcX := bounds.Min.X + x*bounds.Dx()/width
	srcY := bounds.Min.Y + y*bounds.Dy()/height
	r, g, bl, _ := img.At(srcX, srcY).RGBA()
	// Rec. 601 luma, scaled back to 8 bits.
	return (299*(r>>8) + 587*(g>>8) + 114*(bl>>8)) / 1000
}
