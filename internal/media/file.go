package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"avmerge/internal/services"
)

// Kind distinguishes audio and video inputs.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// MediaFile is one discovered input file. Created is zero when the
// filesystem reports no usable timestamp.
type MediaFile struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Stem    string    `json:"stem"`
	Ext     string    `json:"ext"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created,omitzero"`
}

// HasTimestamp reports whether Created carries a real value.
func (f MediaFile) HasTimestamp() bool {
	return !f.Created.IsZero()
}

// Stem strips the final extension from a file name.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Describe stats a single path and builds its MediaFile.
func Describe(path string, kind Kind) (MediaFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MediaFile{}, services.Wrap(services.ErrNotFound, "media", "describe", path, err)
		}
		return MediaFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return MediaFile{}, fmt.Errorf("%s: not a regular file", path)
	}
	return build(path, info, kind), nil
}

func build(path string, info fs.FileInfo, kind Kind) MediaFile {
	name := filepath.Base(path)
	return MediaFile{
		Path:    path,
		Name:    name,
		Stem:    Stem(name),
		Ext:     strings.ToLower(filepath.Ext(name)),
		Kind:    kind,
		Size:    info.Size(),
		Created: creationTime(path, info),
	}
}

// Scan lists regular files in dir whose extension is in exts. Hidden files
// are ignored. Results are sorted by name.
func Scan(dir string, kind Kind, exts []string) ([]MediaFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "media", "scan", fmt.Sprintf("%s directory not set", kind), nil)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "media", "scan", dir, err)
		}
		return nil, fmt.Errorf("read %s directory %s: %w", kind, dir, err)
	}

	allowed := extensionSet(exts)
	files := make([]MediaFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			// Raced with a delete or a dangling symlink.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, build(path, info, kind))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// HasExtension reports whether path carries one of exts (case-insensitive).
func HasExtension(path string, exts []string) bool {
	_, ok := extensionSet(exts)[strings.ToLower(filepath.Ext(path))]
	return ok
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
