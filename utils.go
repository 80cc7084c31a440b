package yolomark

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageExtensions are the file extensions, compared case-insensitively, of the images that
// ListImages returns.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// ListImages returns the sorted absolute paths of the images found directly in dirPath.
func ListImages(dirPath string) ([]string, error) {
	abs, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, err
	}
	files, err := filesByExtInDir(abs, ImageExtensions...)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// filesByExtInDir retuns all regular files with one of the file extensions exts found directly
// in directory dirPath. Extensions are matched case-insensitively. All files are returned if no
// extension is given.
func filesByExtInDir(dirPath string, exts ...string) (files []string, err error) {
	// Open the directory.
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}
	if !dirInfo.IsDir() {
		return nil, fmt.Errorf("not a directory: %q", dirPath)
	}
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access %q: %w", dirPath, err)
	}
	defer closeWithErrCheck(dir, &err)

	hasExt := func(name string) bool {
		if len(exts) == 0 {
			return true
		}
		lower := strings.ToLower(name)
		for _, ext := range exts {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
		return false
	}

	// Iterate over all files in dir.
	files = make([]string, 0, 100)
	var fileList []os.FileInfo
	for fileList, err = dir.Readdir(100); len(fileList) > 0; fileList, err = dir.Readdir(100) {
		for _, file := range fileList {
			name := file.Name()
			// Must be a regular file or a symlink and have a requested extension.
			if (!file.Mode().IsRegular() && (file.Mode()&os.ModeSymlink == 0)) || !hasExt(name) {
				continue
			}
			files = append(files, filepath.Join(dirPath, name))
		}
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to list %q: %w", dirPath, err)
	}

	return files, nil
}

// labelFileName is the name of the label file for the image at imagePath: its base name with the
// extension replaced by ".txt".
func labelFileName(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %w", path, err)
	}

	return lines, nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
