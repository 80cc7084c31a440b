package yolomark

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listDir returns the sorted names of the files in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// annotatedSession returns a session with img1.jpg holding an "a" and a "b" box and img2.png
// holding none.
func annotatedSession(t *testing.T) (*Session, []string) {
	t.Helper()
	s, paths := newTestSession(t, "img1.jpg", "img2.png")
	s.AddClass("a")
	s.AddClass("b")
	require.NoError(t, s.SelectClass("a"))
	_, err := s.Draw(Point{20, 40}, Point{200, 300})
	require.NoError(t, err)
	require.NoError(t, s.SelectClass("b"))
	_, err = s.Draw(Point{400, 400}, Point{300, 200})
	require.NoError(t, err)
	return s, paths
}

func TestSave(t *testing.T) {
	s, paths := annotatedSession(t)
	out := t.TempDir()

	report, err := s.Save(context.Background(), NewDirSink(out), SaveOptions{})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, []string{"img1.txt"}, report.Labels)

	assert.Equal(t, []string{"classes.txt", "img1.txt"}, listDir(t, out))
	assert.Equal(t, "a\nb\n", readFile(t, filepath.Join(out, "classes.txt")))
	assert.Equal(t, "0 10 20 100 150\n1 150 100 200 200\n", readFile(t, filepath.Join(out, "img1.txt")))

	// Saving again overwrites.
	require.True(t, s.Store.Delete(paths[0], 0))
	_, err = s.Save(context.Background(), NewDirSink(out), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1 150 100 200 200\n", readFile(t, filepath.Join(out, "img1.txt")))
}

func TestSaveYOLOStable(t *testing.T) {
	s, _ := annotatedSession(t)
	s.AddClass("c")
	s.Classes.Remove("c")
	s.AddClass("d")
	out := t.TempDir()

	opts := SaveOptions{LabelOptions{Format: YOLOLabels, IDs: StableIDs}}
	_, err := s.Save(context.Background(), NewDirSink(out), opts)
	require.NoError(t, err)

	assert.Equal(t, "0 a\n1 b\n3 d\n", readFile(t, filepath.Join(out, "classes.txt")))
	// Box a: native (10,20)-(100,150) in a 400x300 image.
	lines := strings.Split(strings.TrimSpace(readFile(t, filepath.Join(out, "img1.txt"))), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0 0.137500 0.283333 0.225000 0.433333", lines[0])
}

func TestSaveThenLoad(t *testing.T) {
	s, paths := annotatedSession(t)
	out := t.TempDir()
	opts := LabelOptions{IDs: StableIDs, Format: YOLOLabels}
	_, err := s.Save(context.Background(), NewDirSink(out), SaveOptions{opts})
	require.NoError(t, err)

	loaded := NewSession(nil)
	loaded.SetImages(s.Images())
	n, err := loaded.LoadAnnotations(out, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, s.Classes.Classes(), loaded.Classes.Classes())

	want := s.Store.Boxes(paths[0])
	got := loaded.Store.Boxes(paths[0])
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Class, got[i].Class)
		for j := 0; j < 4; j++ {
			assert.InDelta(t, want[i].Coords[j], got[i].Coords[j], 1e-3)
		}
	}
	assert.Empty(t, loaded.Store.Boxes(paths[1]))
}

func TestLoadMissingDir(t *testing.T) {
	s := NewSession(nil)
	_, err := s.LoadAnnotations(filepath.Join(t.TempDir(), "missing"), LabelOptions{})
	assert.True(t, IsNotSaved(err))
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	s, paths := newTestSession(t, "img.jpg")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classes.txt"), []byte("a\nb\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img.txt"),
		[]byte("1 40 30 10 20\nbad line\n7 0 0 1 1\n\n0 1 2 3 4\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("0 1 2 3 4\n"), 0644))

	n, err := s.LoadAnnotations(dir, LabelOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []Box{
		{Coords: [4]float64{10, 20, 40, 30}, Class: "b"},
		{Coords: [4]float64{1, 2, 3, 4}, Class: "a"},
	}, s.Store.Boxes(paths[0]))
}

func exportFiles(t *testing.T, out, subset string) (images, labels []string) {
	t.Helper()
	return listDir(t, filepath.Join(out, "images", subset)), listDir(t, filepath.Join(out, "labels", subset))
}

func TestExportDegenerateSplits(t *testing.T) {
	s, paths := annotatedSession(t)

	out := t.TempDir()
	report, err := s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 0},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Train)
	assert.Equal(t, paths, report.Val)
	images, labels := exportFiles(t, out, ValSubset)
	assert.Equal(t, []string{"img1.jpg", "img2.png"}, images)
	assert.Equal(t, []string{"img1.txt"}, labels)
	images, labels = exportFiles(t, out, TrainSubset)
	assert.Empty(t, images)
	assert.Empty(t, labels)
	assert.Equal(t, "a\nb\n", readFile(t, filepath.Join(out, "classes.txt")))
	assert.Equal(t, "0 10 20 100 150\n1 150 100 200 200\n",
		readFile(t, filepath.Join(out, "labels", "val", "img1.txt")))

	out = t.TempDir()
	report, err = s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, paths, report.Train)
	assert.Empty(t, report.Val)
	assert.Equal(t, []string{"labels/train/img1.txt"}, report.Labels)
	images, _ = exportFiles(t, out, TrainSubset)
	assert.Equal(t, []string{"img1.jpg", "img2.png"}, images)
}

func TestExportCoversEveryImageOnce(t *testing.T) {
	names := make([]string, 30)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + strings.Repeat("x", i/26) + ".png"
	}
	s, _ := newTestSession(t, names...)
	out := t.TempDir()

	seed := int64(7)
	_, err := s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 0.5, Seed: &seed},
		Workers:      3,
	})
	require.NoError(t, err)

	train, _ := exportFiles(t, out, TrainSubset)
	val, _ := exportFiles(t, out, ValSubset)
	all := append(append([]string(nil), train...), val...)
	sort.Strings(all)
	sort.Strings(names)
	assert.Equal(t, names, all)
}

func TestExportReportsFailedImages(t *testing.T) {
	s, paths := annotatedSession(t)
	require.NoError(t, os.Remove(paths[1]))

	out := t.TempDir()
	report, err := s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 1},
	})
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Failed, 1)
	assert.Equal(t, paths[1], report.Failed[0].Image)
	assert.Equal(t, []string{paths[0]}, report.Train)

	images, labels := exportFiles(t, out, TrainSubset)
	assert.Equal(t, []string{"img1.jpg"}, images)
	assert.Equal(t, []string{"img1.txt"}, labels)
	assert.FileExists(t, filepath.Join(out, "classes.txt"))
}

func TestExportRejectsInvalidSplit(t *testing.T) {
	s, _ := annotatedSession(t)
	out := t.TempDir()

	_, err := s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 1.5},
	})
	assert.ErrorIs(t, err, ErrInvalidSplit)
	assert.Empty(t, listDir(t, out))
}

func TestExportResize(t *testing.T) {
	s, _ := annotatedSession(t)
	out := t.TempDir()

	_, err := s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 1},
		ResizeLonger: 200,
	})
	require.NoError(t, err)

	size, err := decodeImageSize(filepath.Join(out, "images", "train", "img1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 200, Height: 150}, size)
	assert.Equal(t, "0 5 10 50 75\n1 75 50 100 100\n",
		readFile(t, filepath.Join(out, "labels", "train", "img1.txt")))
}

func TestExportCancelled(t *testing.T) {
	s, _ := annotatedSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := t.TempDir()
	_, err := s.Export(ctx, NewDirSink(out), ExportOptions{SplitOptions: SplitOptions{TrainFraction: 1}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(out, "classes.txt"))
}

func TestLabelNameCollision(t *testing.T) {
	s, paths := newTestSession(t, "same.jpg", "same.png")
	s.AddClass("a")
	require.NoError(t, s.SelectClass("a"))
	_, err := s.Draw(Point{0, 0}, Point{10, 10})
	require.NoError(t, err)
	s.Navigate(1)
	_, err = s.Draw(Point{0, 0}, Point{20, 20})
	require.NoError(t, err)

	report, err := s.Save(context.Background(), NewDirSink(t.TempDir()), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"same.txt"}, report.Labels)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, paths[1], report.Failed[0].Image)
}

func TestSharedLabelNameRoundTrip(t *testing.T) {
	s, paths := newTestSession(t, "same.jpg", "same.png")
	s.AddClass("a")
	require.NoError(t, s.SelectClass("a"))
	_, err := s.Draw(Point{0, 0}, Point{10, 10})
	require.NoError(t, err)

	out := t.TempDir()
	report, err := s.Save(context.Background(), NewDirSink(out), SaveOptions{})
	require.NoError(t, err)
	require.True(t, report.OK())

	loaded := NewSession(nil)
	loaded.SetImages(s.Images())
	_, err = loaded.LoadAnnotations(out, LabelOptions{})
	require.NoError(t, err)
	assert.Len(t, loaded.Store.Boxes(paths[0]), 1)
	assert.Empty(t, loaded.Store.Boxes(paths[1]))

	// same.jpg owns same.txt even without boxes, so same.png cannot be saved.
	annotated, _ := newTestSession(t, "same.jpg", "same.png")
	annotated.AddClass("a")
	require.NoError(t, annotated.SelectClass("a"))
	annotated.Navigate(1)
	_, err = annotated.Draw(Point{0, 0}, Point{10, 10})
	require.NoError(t, err)
	report, err = annotated.Save(context.Background(), NewDirSink(t.TempDir()), SaveOptions{})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "same.png", filepath.Base(report.Failed[0].Image))
	assert.Empty(t, report.Labels)
}

func TestExportSharedLabelNameKeepsImage(t *testing.T) {
	s, paths := newTestSession(t, "same.jpg", "same.png")
	s.AddClass("a")
	require.NoError(t, s.SelectClass("a"))
	_, err := s.Draw(Point{0, 0}, Point{10, 10})
	require.NoError(t, err)
	s.Navigate(1)
	_, err = s.Draw(Point{0, 0}, Point{20, 20})
	require.NoError(t, err)

	out := t.TempDir()
	report, err := s.Export(context.Background(), NewDirSink(out), ExportOptions{
		SplitOptions: SplitOptions{TrainFraction: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, paths, report.Train)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, paths[1], report.Failed[0].Image)

	images, labels := exportFiles(t, out, TrainSubset)
	assert.Equal(t, []string{"same.jpg", "same.png"}, images)
	assert.Equal(t, []string{"same.txt"}, labels)
	assert.Equal(t, "0 0 0 5 5\n", readFile(t, filepath.Join(out, "labels", "train", "same.txt")))
}

func TestLoadDropsBoxesOfUnlistedClasses(t *testing.T) {
	s, paths := newTestSession(t, "x.jpg")
	s.AddClass("z")
	require.NoError(t, s.SelectClass("z"))
	_, err := s.Draw(Point{0, 0}, Point{10, 10})
	require.NoError(t, err)
	_, ok := s.SelectAt(Point{5, 5})
	require.True(t, ok)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classes.txt"), []byte("a\n"), 0644))

	_, err = s.LoadAnnotations(dir, LabelOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, s.Classes.Names())
	assert.Empty(t, s.Store.Boxes(paths[0]))
	_, ok = s.Selected()
	assert.False(t, ok)

	report, err := s.Save(context.Background(), NewDirSink(t.TempDir()), SaveOptions{})
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestLoadRejectsDuplicateClassIDs(t *testing.T) {
	s, paths := annotatedSession(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classes.txt"), []byte("0 a\n0 b\n"), 0644))

	_, err := s.LoadAnnotations(dir, LabelOptions{IDs: StableIDs})
	assert.Error(t, err)
	// The session is unchanged.
	assert.Equal(t, []string{"a", "b"}, s.Classes.Names())
	assert.Len(t, s.Store.Boxes(paths[0]), 2)
}
