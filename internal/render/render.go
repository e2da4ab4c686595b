// Package render turns ticket codes into scannable images.
package render

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	qrcode "github.com/skip2/go-qrcode"
)

// Renderer produces an opaque reference to a visual form of a code.
type Renderer interface {
	Render(ctx context.Context, code string) (string, error)
}

// QRFiles writes one PNG per code into a directory and returns its public URL.
type QRFiles struct {
	dir       string
	urlPrefix string
	size      int
}

// NewQRFiles constructs a QRFiles renderer, creating the directory if needed.
func NewQRFiles(cfg config.RenderConfig) (*QRFiles, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create qr dir: %w", err)
	}
	size := cfg.Size
	if size <= 0 {
		size = 256
	}
	return &QRFiles{dir: cfg.Dir, urlPrefix: cfg.URLPrefix, size: size}, nil
}

func (q *QRFiles) Render(_ context.Context, code string) (string, error) {
	name := code + ".png"
	if err := qrcode.WriteFile(code, qrcode.Medium, q.size, filepath.Join(q.dir, name)); err != nil {
		return "", fmt.Errorf("render qr %s: %w", code, err)
	}
	return path.Join(q.urlPrefix, name), nil
}

// Dir is the directory the PNG files are written to.
func (q *QRFiles) Dir() string { return q.dir }

// Nop renders nothing. Tickets remain valid without a visual.
type Nop struct{}

func (Nop) Render(context.Context, string) (string, error) { return "", nil }
