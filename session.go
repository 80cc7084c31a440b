package yolomark

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var (
	// ErrNoImage is returned by operations on the current image when no image is loaded.
	ErrNoImage = errors.New("no image loaded")
	// ErrNoClassSelected is returned by Draw when no class is active.
	ErrNoClassSelected = errors.New("no class selected")
)

// DefaultViewport is the canvas size a new Session starts with.
var DefaultViewport = Size{Width: 800, Height: 600}

// Session is the annotation state driven by a UI shell: the listed images, the current image,
// the canvas viewport, the classes with the active class, the boxes and the selected box.
//
// Gesture points passed to a Session are in display space; boxes are stored in native image
// pixels, so they stay valid when the viewport changes.
//
// A Session is not safe for concurrent use.
type Session struct {
	Classes *Registry
	Store   *Store

	images   []string
	index    int // -1 without images.
	selected int // -1 without a selection.
	viewport Size
	sizes    map[string]Size
	log      *zap.Logger
}

// NewSession returns an empty session. A nil log discards log output.
func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		Classes:  NewRegistry(),
		Store:    NewStore(),
		index:    -1,
		selected: -1,
		viewport: DefaultViewport,
		sizes:    make(map[string]Size),
		log:      log,
	}
}

// OpenFolder lists the images in dir and makes the first one current. Annotations of previously
// listed images are kept.
func (s *Session) OpenFolder(dir string) error {
	images, err := ListImages(dir)
	if err != nil {
		return err
	}
	s.SetImages(images)
	s.log.Info("Folder opened", zap.String("dir", dir), zap.Int("images", len(images)))
	return nil
}

// SetImages replaces the image list with images, in the given order, and makes the first one
// current.
func (s *Session) SetImages(images []string) {
	s.images = append([]string(nil), images...)
	s.index = -1
	if len(s.images) > 0 {
		s.index = 0
	}
	s.selected = -1
}

// Images returns the listed images.
func (s *Session) Images() []string {
	return append([]string(nil), s.images...)
}

// Index returns the index of the current image, or -1 if there are no images.
func (s *Session) Index() int {
	return s.index
}

// Current returns the path of the current image.
func (s *Session) Current() (string, bool) {
	if s.index < 0 {
		return "", false
	}
	return s.images[s.index], true
}

// SetIndex makes image i current, clamped to the valid range, and returns the new index.
func (s *Session) SetIndex(i int) int {
	if len(s.images) == 0 {
		return -1
	}
	if i < 0 {
		i = 0
	} else if i >= len(s.images) {
		i = len(s.images) - 1
	}
	if i != s.index {
		s.index = i
		s.selected = -1
	}
	return s.index
}

// Navigate moves the current image by delta, clamped to the valid range.
func (s *Session) Navigate(delta int) int {
	return s.SetIndex(s.index + delta)
}

// Viewport returns the canvas size.
func (s *Session) Viewport() Size {
	return s.viewport
}

// SetViewport sets the canvas size used to map gestures and to render.
func (s *Session) SetViewport(viewport Size) error {
	if viewport.Empty() {
		return ErrEmptySize
	}
	s.viewport = viewport
	return nil
}

// ImageSize returns the native size of image, decoding the image header on first use.
func (s *Session) ImageSize(image string) (Size, error) {
	if size, ok := s.sizes[image]; ok {
		return size, nil
	}
	size, err := decodeImageSize(image)
	if err != nil {
		return Size{}, err
	}
	s.sizes[image] = size
	return size, nil
}

// sizeFor returns the native size of image if format needs it, and the zero Size otherwise.
func (s *Session) sizeFor(image string, format LabelFormat) (Size, error) {
	if format != YOLOLabels {
		return Size{}, nil
	}
	return s.ImageSize(image)
}

// Transform returns the mapping between the current image and the viewport.
func (s *Session) Transform() (Transform, error) {
	image, ok := s.Current()
	if !ok {
		return Transform{}, ErrNoImage
	}
	size, err := s.ImageSize(image)
	if err != nil {
		return Transform{}, err
	}
	return FitTransform(size, s.viewport)
}

// AddClass registers name. Empty and duplicate names are ignored.
func (s *Session) AddClass(name string) bool {
	return s.Classes.Add(name)
}

// RemoveClass unregisters name and deletes all boxes labelled name from all images.
func (s *Session) RemoveClass(name string) bool {
	if !s.Classes.Remove(name) {
		return false
	}
	if n := s.Store.DeleteByClass(name); n > 0 {
		s.selected = -1
		s.log.Info("Class removed with its boxes", zap.String("class", name), zap.Int("boxes", n))
	}
	return true
}

// SelectClass makes name the class of subsequently drawn boxes.
func (s *Session) SelectClass(name string) error {
	return s.Classes.Select(name)
}

// Draw adds a box with the active class to the current image, spanned by the display space
// points of a drag gesture, and returns its index. The box is clipped to the image. The selection
// is cleared.
func (s *Session) Draw(start, end Point) (int, error) {
	class, ok := s.Classes.Active()
	if !ok {
		return -1, ErrNoClassSelected
	}
	image, ok := s.Current()
	if !ok {
		return -1, ErrNoImage
	}
	s.selected = -1

	t, err := s.Transform()
	if err != nil {
		return -1, err
	}
	size, err := s.ImageSize(image)
	if err != nil {
		return -1, err
	}
	// Gestures may start or end in the margin around the image.
	b := NewBox(t.ToNative(start), t.ToNative(end), class).Clamp(size)
	return s.Store.Add(image, b)
}

// SelectAt selects the first box of the current image that contains the display space point p.
// The selection is unchanged if no box contains p.
func (s *Session) SelectAt(p Point) (int, bool) {
	image, ok := s.Current()
	if !ok {
		return -1, false
	}
	t, err := s.Transform()
	if err != nil {
		return -1, false
	}
	i, ok := s.Store.HitTest(image, t.ToNative(p))
	if ok {
		s.selected = i
	}
	return i, ok
}

// Selected returns the index of the selected box of the current image.
func (s *Session) Selected() (int, bool) {
	return s.selected, s.selected >= 0
}

// DeleteSelected deletes the selected box. It does nothing and returns false without a
// selection.
func (s *Session) DeleteSelected() bool {
	image, ok := s.Current()
	if !ok || s.selected < 0 {
		return false
	}
	deleted := s.Store.Delete(image, s.selected)
	s.selected = -1
	return deleted
}

// DisplayBoxes returns the boxes of the current image in display space, in drawing order.
func (s *Session) DisplayBoxes() ([]Box, error) {
	image, ok := s.Current()
	if !ok {
		return nil, ErrNoImage
	}
	t, err := s.Transform()
	if err != nil {
		return nil, err
	}
	boxes := s.Store.Boxes(image)
	for i, b := range boxes {
		boxes[i] = t.BoxToDisplay(b)
	}
	return boxes, nil
}

// Save writes the annotations to sink. See Save.
func (s *Session) Save(ctx context.Context, sink Sink, opts SaveOptions) (Report, error) {
	return Save(ctx, sink, s, opts)
}

// Export writes the train/val dataset to sink. See Export.
func (s *Session) Export(ctx context.Context, sink Sink, opts ExportOptions) (Report, error) {
	return Export(ctx, sink, s, opts)
}

// LoadAnnotations reads a directory written by Save back into the session. See
// LoadAnnotations.
func (s *Session) LoadAnnotations(dir string, opts LabelOptions) (int, error) {
	return LoadAnnotations(dir, s, opts)
}
