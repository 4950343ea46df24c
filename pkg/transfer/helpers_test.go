package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/illmade-knight/go-clientcache/pkg/transfer"
)

// mockGCSWriter is a mock GCSWriter that writes to an in-memory buffer. Like
// storage.Writer, Close commits the object unless the writer's context was
// cancelled first.
type mockGCSWriter struct {
	ctx       context.Context
	buf       bytes.Buffer
	closed    bool
	committed bool
	closeErr  error
}

func (m *mockGCSWriter) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	m.closed = true
	if err := m.ctx.Err(); err != nil {
		return err
	}
	if m.closeErr != nil {
		return m.closeErr
	}
	m.committed = true
	return nil
}

type mockGCSObjectHandle struct {
	writer *mockGCSWriter
}

func (m *mockGCSObjectHandle) NewWriter(ctx context.Context) transfer.GCSWriter {
	m.writer.ctx = ctx
	return m.writer
}

// mockGCSBucketHandle records every object created through it.
type mockGCSBucketHandle struct {
	mu       sync.Mutex
	closeErr error
	objects  map[string]*mockGCSObjectHandle
}

func (m *mockGCSBucketHandle) Object(name string) transfer.GCSObjectHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]*mockGCSObjectHandle)
	}
	if _, ok := m.objects[name]; !ok {
		m.objects[name] = &mockGCSObjectHandle{writer: &mockGCSWriter{closeErr: m.closeErr}}
	}
	return m.objects[name]
}

type mockGCSClient struct {
	bucketName string
	bucket     *mockGCSBucketHandle
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: &mockGCSBucketHandle{}}
}

func (m *mockGCSClient) Bucket(name string) transfer.GCSBucketHandle {
	m.bucketName = name
	return m.bucket
}
