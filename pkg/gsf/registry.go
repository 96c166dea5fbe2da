package gsf

import (
	"fmt"
	"os"
	"sync"
)

// Registry.Open returns ErrTooManyOpenFiles (errors.go) once maxOpen
// concurrently open handles are already held, mirroring gsf.c's
// GSF_TOO_MANY_OPEN_FILES (GSF_MAX_OPEN_FILES).

// Registry is a bounded, mutex-guarded table of open *File handles keyed by
// the path string passed to Open (not normalized to an absolute path; two
// spellings of one file are two entries), standing in for gsf.c's fixed-size static gsfFileTable
// (Design Notes §9 "Global file table"). Re-opening a path whose file was
// previously closed through the same Registry reuses its retained scale
// factor table rather than starting from an empty one, the same rationale
// gsfOpen documents for slot reuse: "so the ping scale factors don't have
// to be reset except when a new file is created."
type registryEntry struct {
	file    *File
	osFile  *os.File
	idxFile *os.File
}

type Registry struct {
	mu      sync.Mutex
	maxOpen int
	open    map[string]registryEntry
	scales  map[string]*ScaleFactorTable
}

// NewRegistry returns an empty Registry that allows at most maxOpen
// concurrently open handles. maxOpen <= 0 defaults to 32.
func NewRegistry(maxOpen int) *Registry {
	if maxOpen <= 0 {
		maxOpen = 32
	}
	return &Registry{
		maxOpen: maxOpen,
		open:    make(map[string]registryEntry),
		scales:  make(map[string]*ScaleFactorTable),
	}
}

// osFlags returns the os.OpenFile flags matching mode's read/write/create
// intent.
func osFlags(mode OpenMode) int {
	switch mode {
	case CREATE, CREATE_INDEX:
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case UPDATE, UPDATE_INDEX:
		return os.O_RDWR
	case APPEND, APPEND_INDEX:
		return os.O_RDWR | os.O_APPEND | os.O_CREATE
	default:
		return os.O_RDONLY
	}
}

// Open returns the File handle for path, opening it against the OS
// filesystem if the registry does not already hold one. A path already
// open under this Registry returns its existing handle rather than a
// second one (the registry's table is keyed by path, never by handle
// count), matching gsfOpen's filename-match slot search.
func (r *Registry) Open(path string, mode OpenMode) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.open[path]; ok {
		return e.file, nil
	}
	if len(r.open) >= r.maxOpen {
		return nil, ErrTooManyOpenFiles
	}

	osFile, err := os.OpenFile(path, osFlags(mode), 0o644)
	if err != nil {
		return nil, fmt.Errorf("gsf: registry open %s: %w", path, err)
	}
	var info os.FileInfo
	if info, err = osFile.Stat(); err != nil {
		osFile.Close()
		return nil, fmt.Errorf("gsf: registry stat %s: %w", path, err)
	}

	var indexStream Stream
	var idxFile *os.File
	if mode.indexed() {
		idxFile, err = os.OpenFile(path+".idx", osFlags(mode), 0o644)
		if err != nil {
			osFile.Close()
			return nil, fmt.Errorf("gsf: registry open index for %s: %w", path, err)
		}
		indexStream = idxFile
	}

	f, err := Open(osFile, indexStream, path, mode, info.Size())
	if err != nil {
		osFile.Close()
		if idxFile != nil {
			idxFile.Close()
		}
		return nil, err
	}

	if prev, ok := r.scales[path]; ok {
		f.scales = prev
	} else {
		r.scales[path] = f.scales
	}

	r.open[path] = registryEntry{file: f, osFile: osFile, idxFile: idxFile}
	return f, nil
}

// Close closes the handle for path, retaining its scale factor table for a
// future Registry.Open of the same path, and drops it from the open table.
// File.Close only flushes buffered writes; the registry owns the underlying
// OS descriptors and is responsible for closing them itself.
func (r *Registry) Close(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.open[path]
	if !ok {
		return nil
	}
	r.scales[path] = e.file.scales
	delete(r.open, path)

	err := e.file.Close()
	if cerr := e.osFile.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("gsf: registry close %s: %w", path, cerr)
	}
	if e.idxFile != nil {
		if cerr := e.idxFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("gsf: registry close index for %s: %w", path, cerr)
		}
	}
	return err
}

// OpenCount reports how many handles the registry currently holds.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
