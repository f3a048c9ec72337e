// Package qrcode renders pairing codes as PNG data URIs using go-qrcode.
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"

	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.QRRenderer = (*Renderer)(nil)

const dataURIPrefix = "data:image/png;base64,"

// Renderer encodes pairing codes as square PNG images.
type Renderer struct {
	size  int
	level goqrcode.RecoveryLevel
}

// NewRenderer creates a Renderer producing images size pixels wide.
func NewRenderer(size int) *Renderer {
	return &Renderer{size: size, level: goqrcode.Medium}
}

// DataURI returns the pairing code as a PNG data URI suitable for an <img> src.
func (r *Renderer) DataURI(code string) (string, error) {
	if code == "" {
		return "", errors.New("empty pairing code")
	}

	png, err := goqrcode.Encode(code, r.level, r.size)
	if err != nil {
		return "", fmt.Errorf("encode pairing code: %w", err)
	}

	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
