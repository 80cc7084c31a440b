package yolomark

import (
	"errors"
	"sort"
)

// ErrNoClass is returned when a box without a class is added to a Store.
var ErrNoClass = errors.New("box has no class")

// Store maps image paths to their boxes, kept in insertion order. An image without boxes has
// no entry.
type Store struct {
	boxes map[string][]Box
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{boxes: make(map[string][]Box)}
}

// Add appends b to the boxes of image and returns its index.
func (s *Store) Add(image string, b Box) (int, error) {
	if b.Class == "" {
		return -1, ErrNoClass
	}
	s.boxes[image] = append(s.boxes[image], b)
	return len(s.boxes[image]) - 1, nil
}

// HitTest returns the index of the first box, in insertion order, that contains p.
func (s *Store) HitTest(image string, p Point) (int, bool) {
	for i, b := range s.boxes[image] {
		if b.Contains(p) {
			return i, true
		}
	}
	return -1, false
}

// Delete removes the box at index. It does nothing and returns false if index is out of range.
func (s *Store) Delete(image string, index int) bool {
	boxes := s.boxes[image]
	if index < 0 || index >= len(boxes) {
		return false
	}

	boxes = append(boxes[:index], boxes[index+1:]...)
	if len(boxes) == 0 {
		delete(s.boxes, image)
	} else {
		s.boxes[image] = boxes
	}
	return true
}

// DeleteByClass removes every box labelled class from every image and returns how many were
// removed.
func (s *Store) DeleteByClass(class string) int {
	removed := 0
	for image, boxes := range s.boxes {
		kept := boxes[:0]
		for _, b := range boxes {
			if b.Class == class {
				removed++
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 {
			delete(s.boxes, image)
		} else {
			s.boxes[image] = kept
		}
	}
	return removed
}

// Boxes returns a copy of the boxes of image in insertion order.
func (s *Store) Boxes(image string) []Box {
	boxes := s.boxes[image]
	out := make([]Box, len(boxes))
	copy(out, boxes)
	return out
}

// Replace sets the boxes of image, dropping its entry when boxes is empty.
func (s *Store) Replace(image string, boxes []Box) {
	if len(boxes) == 0 {
		delete(s.boxes, image)
		return
	}
	s.boxes[image] = append([]Box(nil), boxes...)
}

// Images returns the sorted paths of all images with at least one box.
func (s *Store) Images() []string {
	images := make([]string, 0, len(s.boxes))
	for image := range s.boxes {
		images = append(images, image)
	}
	sort.Strings(images)
	return images
}

// Len is the total number of boxes.
func (s *Store) Len() int {
	n := 0
	for _, boxes := range s.boxes {
		n += len(boxes)
	}
	return n
}
