package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func writeFile(t *testing.T, fs FileStore, path, content string) {
	t.Helper()
	w, err := fs.Write(context.Background(), path)
	if err != nil {
		t.Fatalf("Write(%s): %v", path, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readFile(t *testing.T, fs FileStore, path string) string {
	t.Helper()
	r, err := fs.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read(%s): %v", path, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	return string(b)
}

func exerciseStore(t *testing.T, fs FileStore) {
	ctx := context.Background()

	if ok, err := fs.Exists(ctx, "index_manifest.json"); err != nil || ok {
		t.Fatalf("Exists before write: ok=%v err=%v", ok, err)
	}
	if _, err := fs.Read(ctx, "index_manifest.json"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read missing: expected os.ErrNotExist, got %v", err)
	}

	writeFile(t, fs, "index_manifest.json", `{"dim":3}`)
	if got := readFile(t, fs, "index_manifest.json"); got != `{"dim":3}` {
		t.Fatalf("content: got %q", got)
	}
	if ok, err := fs.Exists(ctx, "index_manifest.json"); err != nil || !ok {
		t.Fatalf("Exists after write: ok=%v err=%v", ok, err)
	}

	writeFile(t, fs, "index_manifest.json", `{"dim":4}`)
	if got := readFile(t, fs, "index_manifest.json"); got != `{"dim":4}` {
		t.Fatalf("overwrite: got %q", got)
	}
}

func TestLocalStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if l.Dir() != dir || l.Location() != dir {
		t.Fatalf("unexpected root %q", l.Dir())
	}
	exerciseStore(t, l)
}

func TestLocalWriteInvisibleUntilClose(t *testing.T) {
	l, _ := NewLocal(t.TempDir())
	ctx := context.Background()

	w, err := l.Write(ctx, "catalog.jsonl")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, _ = io.WriteString(w, "partial")
	if ok, _ := l.Exists(ctx, "catalog.jsonl"); ok {
		t.Fatalf("file visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ok, _ := l.Exists(ctx, "catalog.jsonl"); !ok {
		t.Fatalf("file missing after Close")
	}

	entries, _ := os.ReadDir(l.Dir())
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	s := NewS3(fake, "bucket", "/indexes/prod/")
	if s.Location() != "s3://bucket/indexes/prod" {
		t.Fatalf("Location: got %q", s.Location())
	}
	exerciseStore(t, s)
	if _, ok := fake.objects["indexes/prod/index_manifest.json"]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}
}

func TestS3WriteUploadsOnClose(t *testing.T) {
	fake := newFakeS3()
	s := NewS3(fake, "bucket", "")
	w, _ := s.Write(context.Background(), "vectors.flat")
	_, _ = w.Write([]byte("abc"))
	if len(fake.objects) != 0 {
		t.Fatalf("object uploaded before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(fake.objects["vectors.flat"]) != "abc" {
		t.Fatalf("unexpected object: %q", fake.objects["vectors.flat"])
	}
}

func TestS3WriteError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	s := NewS3(fake, "bucket", "")
	w, _ := s.Write(context.Background(), "vectors.flat")
	if err := w.Close(); err == nil {
		t.Fatalf("expected upload error")
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(S3Config{Bucket: "b", Endpoint: "http://127.0.0.1:9000", AccessKeyID: "k", SecretAccessKey: "s"})
	if c == nil {
		t.Fatalf("nil client")
	}
	opts := c.Options()
	if !opts.UsePathStyle || opts.Region != "us-east-1" {
		t.Fatalf("unexpected options: path style %v region %q", opts.UsePathStyle, opts.Region)
	}
}
