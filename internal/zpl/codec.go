// Package zpl serializes 1-bit rasters into printer graphic-field commands.
package zpl

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"strings"

	"github.com/printops/labelpress/internal/label"
)

// PackBits converts a strict bilevel grayscale canvas into the raw bitmap
// wire format: one bit per pixel, bit 7 leftmost, rows padded to whole bytes.
// Polarity is inverted relative to the canvas: dark (0x00) becomes a set bit.
func PackBits(img *image.Gray) (data []byte, bytesPerRow int, err error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	bytesPerRow = (width + 7) / 8

	data = make([]byte, 0, bytesPerRow*height)
	for y := 0; y < height; y++ {
		rowStart := img.PixOffset(b.Min.X, b.Min.Y+y)
		for byteIdx := 0; byteIdx < bytesPerRow; byteIdx++ {
			var cur byte
			for bit := 0; bit < 8; bit++ {
				x := byteIdx*8 + bit
				if x >= width {
					break
				}
				switch px := img.Pix[rowStart+x]; px {
				case 0x00:
					cur |= 1 << (7 - bit)
				case 0xFF:
					// light, bit stays clear
				default:
					return nil, 0, fmt.Errorf("pixel (%d,%d) has value %#02x: %w", x, y, px, label.ErrNotMonochrome)
				}
			}
			data = append(data, cur)
		}
	}
	return data, bytesPerRow, nil
}

// EncodeASCII wraps the packed bitmap as uppercase hex inside a complete
// ^XA..^XZ command block. This is the most compatible encoding; some older
// firmware rejects compressed graphic fields.
func EncodeASCII(img *image.Gray) (label.WireLabel, error) {
	data, bytesPerRow, err := PackBits(img)
	if err != nil {
		return label.WireLabel{}, err
	}
	hexData := strings.ToUpper(hex.EncodeToString(data))
	return wireLabel(img, label.EncodingASCII, bytesPerRow, len(data), hexData), nil
}

// EncodeZ64 deflate-compresses the packed bitmap at maximum compression,
// base64-encodes it, and appends a CRC-16/CCITT of the compressed bytes.
// The header geometry always describes the uncompressed raster.
func EncodeZ64(img *image.Gray) (label.WireLabel, error) {
	data, bytesPerRow, err := PackBits(img)
	if err != nil {
		return label.WireLabel{}, err
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return label.WireLabel{}, fmt.Errorf("init compressor: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return label.WireLabel{}, fmt.Errorf("compress bitmap: %w", err)
	}
	if err := zw.Close(); err != nil {
		return label.WireLabel{}, fmt.Errorf("flush compressor: %w", err)
	}

	compressed := buf.Bytes()
	field := fmt.Sprintf(":Z64:%s:%04X",
		base64.StdEncoding.EncodeToString(compressed),
		crc16(compressed),
	)
	return wireLabel(img, label.EncodingZ64, bytesPerRow, len(data), field), nil
}

func wireLabel(img *image.Gray, enc label.GraphicEncoding, bytesPerRow, totalBytes int, field string) label.WireLabel {
	b := img.Bounds()
	zpl := fmt.Sprintf("^XA\n^FO0,0\n^GFA,%d,%d,%d,%s\n^FS\n^XZ\n",
		totalBytes, totalBytes, bytesPerRow, field)
	return label.WireLabel{
		ZPL:         zpl,
		Encoding:    enc,
		Width:       b.Dx(),
		Height:      b.Dy(),
		BytesPerRow: bytesPerRow,
		TotalBytes:  totalBytes,
	}
}

// crc16 computes CRC-16/CCITT (poly 0x1021, init 0xFFFF) as used by the Z64
// transport suffix.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
