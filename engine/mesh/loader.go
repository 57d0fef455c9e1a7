package mesh

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

type loaderImpl struct {
	store   Store
	open    func(path string) (io.ReadCloser, error)
	workers int
	pool    worker.DynamicWorkerPool

	cache map[string]*Handle
}

// Loader reads mesh description files into a Store and owns the resulting handles, so a
// description referenced many times is parsed and registered once.
type Loader interface {
	// Load returns the handle for path, parsing and registering the description on first use.
	//
	// Parameters:
	//   - path: the description file
	//
	// Returns:
	//   - *Handle: the mesh handle, or nil on failure
	//   - error: an *AssetLoadError if the description could not be loaded
	Load(path string) (*Handle, error)

	// LoadAll parses every uncached path in parallel and registers the results in input order on the
	// calling goroutine, so handle offsets do not depend on parse timing.
	//
	// Parameters:
	//   - paths: the description files
	//
	// Returns:
	//   - []*Handle: one handle per path; failed entries are nil
	//   - error: the joined load errors, or nil
	LoadAll(paths []string) ([]*Handle, error)

	// Cached returns the handle previously loaded for path.
	//
	// Parameters:
	//   - path: the description file
	//
	// Returns:
	//   - *Handle: the cached handle
	//   - bool: true if path has been loaded
	Cached(path string) (*Handle, bool)
}

var _ Loader = &loaderImpl{}

// NewLoader creates a Loader registering into store.
//
// Parameters:
//   - store: the store meshes are registered in
//   - options: functional options to configure the loader
//
// Returns:
//   - Loader: the newly created loader
func NewLoader(store Store, options ...LoaderBuilderOption) Loader {
	l := &loaderImpl{
		store:   store,
		open:    func(path string) (io.ReadCloser, error) { return os.Open(path) },
		workers: 4,
		cache:   make(map[string]*Handle),
	}
	for _, option := range options {
		option(l)
	}
	l.pool = worker.NewDynamicWorkerPool(l.workers, 256, 1*time.Second)
	return l
}

func (l *loaderImpl) Load(path string) (*Handle, error) {
	if h, ok := l.cache[path]; ok {
		return h, nil
	}
	data, err := l.parse(path)
	if err != nil {
		log.Printf("[MeshStore] %v", err)
		return nil, err
	}
	return l.register(path, data)
}

func (l *loaderImpl) LoadAll(paths []string) ([]*Handle, error) {
	type result struct {
		data MeshData
		err  error
	}

	results := make([]result, len(paths))
	pending := make(map[string]int)

	var wg sync.WaitGroup
	for i, path := range paths {
		if _, ok := l.cache[path]; ok {
			continue
		}
		if _, ok := pending[path]; ok {
			continue
		}
		pending[path] = i

		wg.Add(1)
		id, p := i, path
		l.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				data, err := l.parse(p)
				results[id] = result{data: data, err: err}
				return nil, err
			},
		})
	}
	wg.Wait()

	handles := make([]*Handle, len(paths))
	var errs []error
	for i, path := range paths {
		if h, ok := l.cache[path]; ok {
			handles[i] = h
			continue
		}
		if pending[path] != i {
			continue
		}
		res := results[i]
		if res.err != nil {
			log.Printf("[MeshStore] %v", res.err)
			errs = append(errs, res.err)
			continue
		}
		h, err := l.register(path, res.data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		handles[i] = h
	}

	// Duplicates of a path that failed stay nil; the rest pick up the registered handle.
	for i, path := range paths {
		if handles[i] == nil {
			handles[i] = l.cache[path]
		}
	}

	return handles, errors.Join(errs...)
}

func (l *loaderImpl) Cached(path string) (*Handle, bool) {
	h, ok := l.cache[path]
	return h, ok
}

func (l *loaderImpl) parse(path string) (MeshData, error) {
	rc, err := l.open(path)
	if err != nil {
		return MeshData{}, &AssetLoadError{Path: path, Err: err}
	}
	defer rc.Close()
	return ParseMesh(path, rc)
}

func (l *loaderImpl) register(path string, data MeshData) (*Handle, error) {
	h, err := l.store.RegisterMesh(data)
	if err != nil {
		loadErr := &AssetLoadError{Path: path, Err: err}
		log.Printf("[MeshStore] %v", loadErr)
		return nil, loadErr
	}
	l.cache[path] = h
	return h, nil
}

// LoaderBuilderOption is a functional option applied to a loader during construction via NewLoader.
type LoaderBuilderOption func(*loaderImpl)

// WithFS makes the loader read descriptions from fsys instead of the operating system.
//
// Parameters:
//   - fsys: the file system to read from
//
// Returns:
//   - LoaderBuilderOption: a function that sets the loader's file source
func WithFS(fsys fs.FS) LoaderBuilderOption {
	return func(l *loaderImpl) {
		l.open = func(path string) (io.ReadCloser, error) { return fsys.Open(path) }
	}
}

// WithWorkers sets the maximum number of descriptions parsed concurrently by LoadAll.
//
// Parameters:
//   - n: worker count (values below 1 are treated as 1)
//
// Returns:
//   - LoaderBuilderOption: a function that sets the worker count
func WithWorkers(n int) LoaderBuilderOption {
	return func(l *loaderImpl) {
		l.workers = max(n, 1)
	}
}
