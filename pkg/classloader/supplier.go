package classloader

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrClassNotFound is wrapped by suppliers that have no bytes for a name.
var ErrClassNotFound = errors.New("class not found")

// IOError reports a failure to obtain the bytes of a class. It is never a
// format or verification error.
type IOError struct {
	Class  string
	Source string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("reading class %s from %s: %v", e.Class, e.Source, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ByteSupplier returns the complete class file for a binary class name
// such as java/lang/Object.
type ByteSupplier interface {
	ReadClass(name string) ([]byte, error)
}

// DirSupplier reads <Dir>/<name>.class.
type DirSupplier struct {
	Dir string
}

func (s DirSupplier) ReadClass(name string) ([]byte, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &IOError{Class: name, Source: s.Dir, Err: ErrClassNotFound}
	}
	if err != nil {
		return nil, &IOError{Class: name, Source: path, Err: err}
	}
	return data, nil
}

// jmodMagic precedes the zip data of a JDK .jmod file.
var jmodMagic = []byte("JM\x01\x00")

// JmodSupplier reads classes from a JDK .jmod file, or from a plain .jar. The
// archive is read into memory on first use.
type JmodSupplier struct {
	Path string

	once    sync.Once
	err     error
	entries map[string]*zip.File
}

// NewJmodSupplier returns a supplier for the jmod or jar at path.
func NewJmodSupplier(path string) *JmodSupplier {
	return &JmodSupplier{Path: path}
}

func (s *JmodSupplier) open() error {
	s.once.Do(func() {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			s.err = fmt.Errorf("archive: reading %s: %w", s.Path, err)
			return
		}
		prefix := ""
		if bytes.HasPrefix(data, jmodMagic) {
			data = data[len(jmodMagic):]
			prefix = "classes/"
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			s.err = fmt.Errorf("archive: opening zip %s: %w", s.Path, err)
			return
		}
		s.entries = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			if len(f.Name) > len(prefix) && f.Name[:len(prefix)] == prefix {
				s.entries[f.Name[len(prefix):]] = f
			}
		}
	})
	return s.err
}

func (s *JmodSupplier) ReadClass(name string) ([]byte, error) {
	if err := s.open(); err != nil {
		return nil, &IOError{Class: name, Source: s.Path, Err: err}
	}
	f, ok := s.entries[name+".class"]
	if !ok {
		return nil, &IOError{Class: name, Source: s.Path, Err: ErrClassNotFound}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &IOError{Class: name, Source: s.Path, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &IOError{Class: name, Source: s.Path, Err: err}
	}
	return data, nil
}

// ChainSupplier tries each supplier in order and returns the first class
// found. Errors other than ErrClassNotFound stop the search.
type ChainSupplier []ByteSupplier

func (c ChainSupplier) ReadClass(name string) ([]byte, error) {
	for _, s := range c {
		data, err := s.ReadClass(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, &IOError{Class: name, Source: "class path", Err: ErrClassNotFound}
}
