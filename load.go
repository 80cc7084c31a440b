package yolomark

// Reading saved annotations back into a session.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LoadAnnotations reads classes.txt and the label files in dir, as written by Save with the same
// opts, into s. Label files are matched to the listed images of s by the names Save gives them;
// label files without a listed image are skipped.
//
// The class registry of s is replaced, as are the boxes of every image with a label file. Boxes
// of other images whose class is not in the loaded class list are removed, like when the class is
// deleted. Malformed lines are logged and skipped. Returns the number of boxes loaded.
func LoadAnnotations(dir string, s *Session, opts LabelOptions) (int, error) {
	lines, err := readLines(filepath.Join(dir, ClassListFile))
	if err != nil {
		return 0, err
	}
	classes, err := parseClassList(lines, opts.IDs)
	if err != nil {
		return 0, fmt.Errorf("invalid %s in %q: %w", ClassListFile, dir, err)
	}

	// Resolve class ids to names.
	classNames := make(map[int]string, len(classes))
	for _, c := range classes {
		classNames[c.ID] = c.Name
	}

	labelFiles, err := filesByExtInDir(dir, ".txt")
	if err != nil {
		return 0, err
	}
	// Label file names resolve to images the way Save assigns them.
	names, _ := s.labelNames()
	listed := make(map[string]bool, len(s.images))
	for _, image := range s.images {
		listed[image] = true
	}
	imagesByName := make(map[string]string, len(names))
	for image, name := range names {
		if listed[image] {
			imagesByName[name] = image
		}
	}

	// Parse everything before touching the session.
	loaded := make(map[string][]Box, len(labelFiles))
	numBoxes := 0
	for _, path := range labelFiles {
		if filepath.Base(path) == ClassListFile {
			continue
		}

		// Find the corresponding image.
		image, found := imagesByName[filepath.Base(path)]
		if !found {
			s.log.Debug("No listed image for label file, skipping", zap.String("file", path))
			continue
		}

		lines, err := readLines(path)
		if err != nil {
			s.log.Warn("Error while reading, skipping", zap.String("file", path), zap.Error(err))
			continue
		}

		var size Size
		if opts.Format == YOLOLabels {
			if size, err = s.ImageSize(image); err != nil {
				s.log.Warn("Cannot read the image size, skipping",
					zap.String("file", path), zap.Error(err))
				continue
			}
		}

		boxes := make([]Box, 0, len(lines))
		for _, line := range lines {
			if line == "" {
				continue
			}
			l, err := parseLabelLine(line)
			if err == nil {
				class, ok := classNames[l.ID]
				if !ok {
					err = fmt.Errorf("unknown class id %d", l.ID)
				} else {
					var b Box
					if b, err = l.decodeBox(class, size, opts.Format); err == nil {
						boxes = append(boxes, b)
					}
				}
			}
			if err != nil {
				s.log.Warn("Error while parsing, skipping line", zap.String("file", path), zap.Error(err))
			}
		}
		loaded[image] = boxes
		numBoxes += len(boxes)
	}

	s.Classes.Restore(classes)
	for image, boxes := range loaded {
		s.Store.Replace(image, boxes)
	}
	if n := s.dropUnregisteredBoxes(); n > 0 {
		s.log.Warn("Removed boxes of classes missing from the loaded class list", zap.Int("boxes", n))
	}
	s.selected = -1

	s.log.Info("Annotations loaded",
		zap.String("dir", dir),
		zap.Int("files", len(loaded)),
		zap.Int("boxes", numBoxes),
		zap.Int("classes", len(classes)))
	return numBoxes, nil
}

// dropUnregisteredBoxes deletes every box whose class is not registered and returns the count.
func (s *Session) dropUnregisteredBoxes() int {
	orphaned := make(map[string]bool)
	for _, image := range s.Store.Images() {
		for _, b := range s.Store.Boxes(image) {
			if _, ok := s.Classes.IndexOf(b.Class); !ok {
				orphaned[b.Class] = true
			}
		}
	}
	n := 0
	for class := range orphaned {
		n += s.Store.DeleteByClass(class)
	}
	return n
}

// IsNotSaved reports whether err from LoadAnnotations means that dir holds no saved annotations.
func IsNotSaved(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
