package yolomark

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// writeImage writes a solid w x h image to dir/name and returns its path. The encoding follows
// the extension of name.
func writeImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	img := imaging.New(w, h, color.NRGBA{B: 255, A: 255})
	require.NoError(t, imaging.Save(img, path))
	return path
}

// newTestSession returns a session listing the given images, each 400x300, with the viewport set
// to 800x600 so that display coordinates are twice the native ones.
func newTestSession(t *testing.T, names ...string) (*Session, []string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = writeImage(t, dir, name, 400, 300)
	}
	s := NewSession(nil)
	require.NoError(t, s.OpenFolder(dir))
	require.NoError(t, s.SetViewport(Size{Width: 800, Height: 600}))
	return s, paths
}
