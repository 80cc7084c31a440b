package yolomark

// Output destinations for Save and Export.

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink receives the files written by Save and Export. Names are slash separated and relative to
// the sink root.
type Sink interface {
	// MkdirAll creates the directory dir and any parents. It is not an error if dir exists.
	MkdirAll(ctx context.Context, dir string) error
	// WriteFile creates or truncates name and writes data to it.
	WriteFile(ctx context.Context, name string, data []byte) error
	// CopyFile copies the local file at src to name.
	CopyFile(ctx context.Context, name, src string) error
}

// DirSink writes into a local directory.
type DirSink struct {
	Root string
}

// NewDirSink returns a DirSink rooted at root.
func NewDirSink(root string) *DirSink {
	return &DirSink{Root: filepath.Clean(root)}
}

func (s *DirSink) path(name string) string {
	return filepath.Join(s.Root, filepath.FromSlash(name))
}

// MkdirAll implements Sink.
func (s *DirSink) MkdirAll(_ context.Context, dir string) error {
	if err := os.MkdirAll(s.path(dir), 0755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", s.path(dir), err)
	}
	return nil
}

// WriteFile implements Sink.
func (s *DirSink) WriteFile(_ context.Context, name string, data []byte) error {
	if err := os.WriteFile(s.path(name), data, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %w", s.path(name), err)
	}
	return nil
}

// CopyFile implements Sink.
func (s *DirSink) CopyFile(_ context.Context, name, src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(in, &err)

	out, err := os.Create(s.path(name))
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("cannot copy %q to %q: %w", src, s.path(name), err)
	}
	return nil
}

func (s *DirSink) String() string {
	return s.Root
}
