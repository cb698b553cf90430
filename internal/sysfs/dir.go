package sysfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
)

// EntryType is a bitmask of directory entry kinds.
type EntryType uint8

const (
	TypeRegular EntryType = 1 << iota
	TypeDir
	TypeSymlink
	TypeOther

	TypeAny = TypeRegular | TypeDir | TypeSymlink | TypeOther
)

// Entry is one name returned by a directory scan.
type Entry struct {
	Name string
	Type EntryType
}

// Dir is an open directory being scanned. The cursor only moves forward;
// a second scan needs a second OpenDir.
type Dir struct {
	path string
	f    *os.File
}

// OpenDir opens the directory at path for scanning. The caller must Close it.
func OpenDir(path string) (*Dir, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if !info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("cannot open %s: not a directory", path)
	}
	return &Dir{path: path, f: f}, nil
}

// Next returns the next entry whose type is in mask. "." and ".." are never
// returned. ok is false at the end of the directory.
func (d *Dir) Next(mask EntryType) (e Entry, ok bool, err error) {
	for {
		entries, err := d.f.ReadDir(1)
		if err == io.EOF {
			return Entry{}, false, nil
		}
		if err != nil {
			return Entry{}, false, fmt.Errorf("readdir %s: %w", d.path, err)
		}
		if len(entries) == 0 {
			continue
		}

		name := entries[0].Name()
		if name == "." || name == ".." {
			continue
		}
		t := entryType(entries[0].Type())
		if t&mask == 0 {
			continue
		}
		return Entry{Name: name, Type: t}, true, nil
	}
}

// Close releases the directory handle.
func (d *Dir) Close() error {
	return d.f.Close()
}

// Scan opens path, calls fn for every entry matching mask, and closes the
// directory on every return path. An error from fn stops the scan and is
// returned as is.
func Scan(path string, mask EntryType, fn func(Entry) error) error {
	d, err := OpenDir(path)
	if err != nil {
		return err
	}
	defer d.Close()

	for {
		e, ok, err := d.Next(mask)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func entryType(m fs.FileMode) EntryType {
	switch {
	case m&fs.ModeDir != 0:
		return TypeDir
	case m&fs.ModeSymlink != 0:
		return TypeSymlink
	case m.IsRegular():
		return TypeRegular
	}
	return TypeOther
}
