package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRFilesRender(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "qrs")
	r, err := NewQRFiles(config.RenderConfig{Dir: dir, URLPrefix: "/static/qrs"})
	require.NoError(t, err)

	ref, err := r.Render(context.Background(), "A1B2C3D4")
	require.NoError(t, err)
	assert.Equal(t, "/static/qrs/A1B2C3D4.png", ref)

	data, err := os.ReadFile(filepath.Join(dir, "A1B2C3D4.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}
