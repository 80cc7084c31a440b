package yolomark

// Label file and class list encoding.

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LabelFormat selects the coordinate layout of label file lines.
type LabelFormat int

// The label coordinate layouts.
const (
	// PixelLabels writes "<id> <x1> <y1> <x2> <y2>" as integer native pixels.
	PixelLabels LabelFormat = iota
	// YOLOLabels writes "<id> <cx> <cy> <w> <h>" normalised to the image size.
	YOLOLabels
)

// ParseLabelFormat parses "pixel" or "yolo".
func ParseLabelFormat(s string) (LabelFormat, error) {
	switch strings.ToLower(s) {
	case "pixel", "":
		return PixelLabels, nil
	case "yolo":
		return YOLOLabels, nil
	}
	return PixelLabels, fmt.Errorf("unknown label format %q", s)
}

func (f LabelFormat) String() string {
	if f == YOLOLabels {
		return "yolo"
	}
	return "pixel"
}

// IDScheme selects which class id is written to label files.
type IDScheme int

// The class id schemes.
const (
	// PositionalIDs uses the position in the class list. classes.txt holds one name per line.
	PositionalIDs IDScheme = iota
	// StableIDs uses the id a class was created with. classes.txt holds "<id> <name>" lines.
	StableIDs
)

// ParseIDScheme parses "position" or "stable".
func ParseIDScheme(s string) (IDScheme, error) {
	switch strings.ToLower(s) {
	case "position", "":
		return PositionalIDs, nil
	case "stable":
		return StableIDs, nil
	}
	return PositionalIDs, fmt.Errorf("unknown class id scheme %q", s)
}

func (s IDScheme) String() string {
	if s == StableIDs {
		return "stable"
	}
	return "position"
}

// LabelOptions controls how labels and class lists are encoded.
type LabelOptions struct {
	Format LabelFormat
	IDs    IDScheme
}

// ClassListFile is the name of the class list written next to label files.
const ClassListFile = "classes.txt"

// classID returns the id written for class under scheme.
func classID(r *Registry, class string, scheme IDScheme) (int, error) {
	var id int
	var ok bool
	if scheme == StableIDs {
		id, ok = r.ID(class)
	} else {
		id, ok = r.IndexOf(class)
	}
	if !ok {
		return -1, fmt.Errorf("class %q is not registered", class)
	}
	return id, nil
}

// encodeLabels returns the label file content for boxes of an image of the given native size.
// The size is only used by YOLOLabels.
func encodeLabels(boxes []Box, size Size, r *Registry, opts LabelOptions) ([]byte, error) {
	if opts.Format == YOLOLabels && size.Empty() {
		return nil, ErrEmptySize
	}

	var buf bytes.Buffer
	for _, b := range boxes {
		id, err := classID(r, b.Class, opts.IDs)
		if err != nil {
			return nil, err
		}

		switch opts.Format {
		case YOLOLabels:
			w, h := float64(size.Width), float64(size.Height)
			cx := (b.Coords[0] + b.Coords[2]) / 2 / w
			cy := (b.Coords[1] + b.Coords[3]) / 2 / h
			_, _ = fmt.Fprintf(&buf, "%d %.6f %.6f %.6f %.6f\n",
				id, cx, cy, b.Width()/w, b.Height()/h)
		default:
			_, _ = fmt.Fprintf(&buf, "%d %d %d %d %d\n", id,
				int(math.Round(b.Coords[0])), int(math.Round(b.Coords[1])),
				int(math.Round(b.Coords[2])), int(math.Round(b.Coords[3])))
		}
	}

	return buf.Bytes(), nil
}

// labelLine is one parsed label file line.
type labelLine struct {
	ID     int
	Values [4]float64
}

// parseLabelLine parses the five space separated values of a label line.
func parseLabelLine(line string) (labelLine, error) {
	l := labelLine{}

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("expected 5 values in %q", line)
	}

	var err error
	if l.ID, err = strconv.Atoi(tokens[0]); err != nil || l.ID < 0 {
		return l, fmt.Errorf("invalid class id in %q", line)
	}
	for i := 1; i < 5 && err == nil; i++ {
		l.Values[i-1], err = strconv.ParseFloat(tokens[i], 64)
	}
	if err != nil {
		return l, fmt.Errorf("unexpected values in %q: %w", line, err)
	}

	return l, nil
}

// decodeBox converts a parsed line back into a native box.
func (l labelLine) decodeBox(class string, size Size, format LabelFormat) (Box, error) {
	v := l.Values
	if format != YOLOLabels {
		return NewBox(Point{X: v[0], Y: v[1]}, Point{X: v[2], Y: v[3]}, class), nil
	}

	if size.Empty() {
		return Box{}, ErrEmptySize
	}
	w, h := float64(size.Width), float64(size.Height)
	cx, cy, bw, bh := v[0]*w, v[1]*h, v[2]*w, v[3]*h
	return NewBox(Point{X: cx - bw/2, Y: cy - bh/2}, Point{X: cx + bw/2, Y: cy + bh/2}, class), nil
}

// encodeClassList returns the classes.txt content for the registry.
func encodeClassList(r *Registry, scheme IDScheme) []byte {
	var buf bytes.Buffer
	for _, c := range r.Classes() {
		if scheme == StableIDs {
			_, _ = fmt.Fprintf(&buf, "%d %s\n", c.ID, c.Name)
		} else {
			buf.WriteString(c.Name)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// parseClassList parses classes.txt lines written by encodeClassList. Blank lines are skipped in
// the stable scheme; in the positional scheme they are not allowed to shift ids, so they are an
// error. Duplicate ids or names are an error in both schemes.
func parseClassList(lines []string, scheme IDScheme) ([]Class, error) {
	// A trailing newline produces no extra line with bufio.Scanner, but an editor may leave one.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	classes := make([]Class, 0, len(lines))
	seenIDs := make(map[int]bool, len(lines))
	seenNames := make(map[string]bool, len(lines))
	for i, line := range lines {
		var c Class
		if scheme != StableIDs {
			if line == "" {
				return nil, fmt.Errorf("empty class name on line %d", i+1)
			}
			c = Class{ID: i, Name: line}
		} else {
			if strings.TrimSpace(line) == "" {
				continue
			}
			tokens := strings.SplitN(line, " ", 2)
			if len(tokens) != 2 || tokens[1] == "" {
				return nil, fmt.Errorf("expected \"<id> <name>\" on line %d: %q", i+1, line)
			}
			id, err := strconv.Atoi(tokens[0])
			if err != nil || id < 0 {
				return nil, fmt.Errorf("invalid class id on line %d: %q", i+1, line)
			}
			c = Class{ID: id, Name: tokens[1]}
		}

		// Ids and names must be unique.
		if seenIDs[c.ID] {
			return nil, fmt.Errorf("duplicate class id %d on line %d", c.ID, i+1)
		}
		if seenNames[c.Name] {
			return nil, fmt.Errorf("duplicate class name %q on line %d", c.Name, i+1)
		}
		seenIDs[c.ID] = true
		seenNames[c.Name] = true
		classes = append(classes, c)
	}

	return classes, nil
}
