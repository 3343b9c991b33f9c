// Package classloader owns the table of loaded classes. It obtains class
// bytes from a ByteSupplier and hands them to the class-file decoder.
package classloader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/daimatz/jvmload/pkg/classfile"
	"github.com/daimatz/jvmload/pkg/diag"
)

// Loader maps binary class names to decoded classes. A name is decoded at
// most once; later requests return the same *ClassFile.
type Loader struct {
	Name     string
	Parent   *Loader
	Supplier ByteSupplier

	// MaxMajorVersion is passed to the decoder. Zero selects its default.
	MaxMajorVersion uint16
	Sink            diag.Sink
	// Concurrency bounds LoadAll. Zero or less means unbounded.
	Concurrency int
	// FailFast stops LoadAll at the first failure.
	FailFast bool

	mu      sync.RWMutex
	classes map[string]*classfile.ClassFile
	group   singleflight.Group
	decodes atomic.Int64
}

// New creates a Loader. supplier and parent may be nil. The zero Loader is
// also ready to use.
func New(name string, supplier ByteSupplier, parent *Loader) *Loader {
	return &Loader{
		Name:     name,
		Parent:   parent,
		Supplier: supplier,
		classes:  make(map[string]*classfile.ClassFile),
	}
}

// Lookup returns an already loaded class.
func (l *Loader) Lookup(name string) (*classfile.ClassFile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cf, ok := l.classes[name]
	return cf, ok
}

// LoadClass decodes data as the class name and records it. If name is
// already loaded the existing class is returned and data is ignored. A
// failed decode leaves the table unchanged.
func (l *Loader) LoadClass(name string, data []byte) (*classfile.ClassFile, error) {
	if cf, ok := l.Lookup(name); ok {
		return cf, nil
	}
	v, err, _ := l.group.Do(name, func() (any, error) {
		if cf, ok := l.Lookup(name); ok {
			return cf, nil
		}
		cf, err := l.decode(name, data)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.classes == nil {
			l.classes = make(map[string]*classfile.ClassFile)
		}
		l.classes[name] = cf
		l.mu.Unlock()
		return cf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*classfile.ClassFile), nil
}

func (l *Loader) decode(name string, data []byte) (*classfile.ClassFile, error) {
	l.decodes.Add(1)
	sink := diag.OrDiscard(l.Sink).With("load_id", uuid.NewString(), "loader", l.Name)
	cf, err := classfile.Parse(data, classfile.Options{
		ClassName:       name,
		MaxMajorVersion: l.MaxMajorVersion,
		Sink:            sink,
	})
	if err != nil {
		return nil, err
	}
	if cf.Name != name {
		sink.Log(diag.Severe, "class name mismatch", "requested", name, "declared", cf.Name)
		return nil, &classfile.VerificationError{
			Class: name,
			Err:   fmt.Errorf("%w: %s", classfile.ErrNameMismatch, cf.Name),
		}
	}
	return cf, nil
}

// Load returns the class name, asking the parent first and falling back to
// this loader's supplier only when the parent cannot find it.
func (l *Loader) Load(name string) (*classfile.ClassFile, error) {
	if cf, ok := l.Lookup(name); ok {
		return cf, nil
	}
	if l.Parent != nil {
		cf, err := l.Parent.Load(name)
		if err == nil {
			return cf, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	if l.Supplier == nil {
		return nil, &IOError{Class: name, Source: l.Name, Err: ErrClassNotFound}
	}
	data, err := l.Supplier.ReadClass(name)
	if err != nil {
		return nil, err
	}
	return l.LoadClass(name, data)
}

// LoadAll loads names concurrently. With FailFast the first error cancels
// the remaining loads; otherwise every failure is reported.
func (l *Loader) LoadAll(ctx context.Context, names []string) ([]*classfile.ClassFile, error) {
	out := make([]*classfile.ClassFile, len(names))
	errs := make([]error, len(names))

	g, ctx := errgroup.WithContext(ctx)
	if l.Concurrency > 0 {
		g.SetLimit(l.Concurrency)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			cf, err := l.Load(name)
			if err != nil {
				errs[i] = err
				if l.FailFast {
					return err
				}
				return nil
			}
			out[i] = cf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, errors.Join(errs...)
}

// Classes returns the names this loader has defined, sorted.
func (l *Loader) Classes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.classes))
	for n := range l.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decodes reports how many times this loader has run the decoder.
func (l *Loader) Decodes() int64 {
	return l.decodes.Load()
}
