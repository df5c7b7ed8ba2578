package certificate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// qrMarginModules 是二维码四周白边的模块数。
	qrMarginModules = 1
	// qrModulePixels 是每个模块的像素边长，渲染时再缩放到布局宽度。
	qrModulePixels = 8
)

// encodeQR 以中等纠错级别生成带一模块白边的二维码位图。
func encodeQR(payload string) (*Asset, error) {
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code.DisableBorder = true
	bitmap := code.Bitmap()

	modules := len(bitmap) + 2*qrMarginModules
	side := modules * qrModulePixels
	img := image.NewGray(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			x0 := (x + qrMarginModules) * qrModulePixels
			y0 := (y + qrMarginModules) * qrModulePixels
			for dy := 0; dy < qrModulePixels; dy++ {
				for dx := 0; dx < qrModulePixels; dx++ {
					img.SetGray(x0+dx, y0+dy, color.Gray{Y: 0})
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return newDecodedAsset(img, buf.Bytes()), nil
}
