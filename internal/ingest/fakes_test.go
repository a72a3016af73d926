package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/your-org/blobrelay/pkg/storage/objectstore"
)

// fakeStore is an in-memory objectstore.Client. Failures are scripted per
// call; Get and Put honor context cancellation like a networked client.
type fakeStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	getErrs      []error
	putErrs      []error
	failAllGets  error
	putCalls     int
	copyCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func storePath(container, key string) string {
	return container + "/" + key
}

func (f *fakeStore) seed(container, key string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[storePath(container, key)] = data
	f.contentTypes[storePath(container, key)] = contentType
}

func (f *fakeStore) object(container, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[storePath(container, key)]
	return data, ok
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}

func (f *fakeStore) Get(ctx context.Context, container, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, objectstore.ObjectInfo{}, fmt.Errorf("get object: %w: %w", objectstore.ErrTransient, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAllGets != nil {
		return nil, objectstore.ObjectInfo{}, f.failAllGets
	}
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, objectstore.ObjectInfo{}, err
	}

	data, ok := f.objects[storePath(container, key)]
	if !ok {
		return nil, objectstore.ObjectInfo{}, fmt.Errorf("get object: %w: %s", objectstore.ErrNotFound, storePath(container, key))
	}

	info := objectstore.ObjectInfo{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: f.contentTypes[storePath(container, key)],
	}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (f *fakeStore) Put(ctx context.Context, container, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) error {
	f.mu.Lock()
	f.putCalls++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put object: %w: %w", objectstore.ErrTransient, err)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("put object: %w: %w", objectstore.ErrTransient, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[storePath(container, key)] = data
	f.contentTypes[storePath(container, key)] = contentType
	return nil
}

func (f *fakeStore) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls++

	data, ok := f.objects[storePath(srcContainer, srcKey)]
	if !ok {
		return fmt.Errorf("copy object: %w: %s", objectstore.ErrNotFound, storePath(srcContainer, srcKey))
	}
	f.objects[storePath(dstContainer, dstKey)] = data
	f.contentTypes[storePath(dstContainer, dstKey)] = f.contentTypes[storePath(srcContainer, srcKey)]
	return nil
}

func (f *fakeStore) Remove(ctx context.Context, container, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, storePath(container, key))
	delete(f.contentTypes, storePath(container, key))
	return nil
}

func (f *fakeStore) Close() error {
	return nil
}

// capturingSink records dead-letter publishes.
type capturingSink struct {
	mu        sync.Mutex
	published []deadLetterEnvelope
}

func (c *capturingSink) Publish(ctx context.Context, ev BlobEvent, reason string, attempts int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, deadLetterEnvelope{Event: ev, Reason: reason, Attempts: attempts})
	return nil
}

func (c *capturingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func (c *capturingSink) last() deadLetterEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[len(c.published)-1]
}

// scriptedProcessor replays a fixed result sequence; the last result repeats.
type scriptedProcessor struct {
	mu      sync.Mutex
	results []Result
	calls   int
	gate    chan struct{} // when set, Process blocks until the gate closes
}

func (s *scriptedProcessor) Process(ctx context.Context, ev BlobEvent) Result {
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx]
}

func (s *scriptedProcessor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
