package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/resilience"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: aws.String(f.types[aws.ToString(in.Key)]),
	}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func newTestStore(client s3API) *S3Store {
	return newStore(client, "bucket", resilience.NewCircuitBreaker("blob-test"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond},
		observability.NewMetrics(), zap.NewNop())
}

func TestS3Store_SaveAndRetrieveImage(t *testing.T) {
	fake := newFakeS3()
	store := newTestStore(fake)
	ctx := context.Background()

	key, err := store.Save(ctx, domain.FolderReceipts, "Recibo.PNG", pngHeader)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(key, domain.FolderReceipts+"/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("unexpected key %q", key)
	}
	if fake.types[key] != "image/png" {
		t.Errorf("expected sniffed image/png, got %q", fake.types[key])
	}

	// Key without its folder prefix resolves the same object.
	file, err := store.Retrieve(ctx, domain.FolderReceipts, strings.TrimPrefix(key, domain.FolderReceipts+"/"))
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if file.ContentType != "image/png" || file.Base64 == "" {
		t.Errorf("expected inlined png, got %+v", file)
	}
}

func TestS3Store_RetrieveTextIsNotInlined(t *testing.T) {
	fake := newFakeS3()
	fake.objects["formularios/a.txt"] = []byte("hello")
	store := newTestStore(fake)

	file, err := store.Retrieve(context.Background(), domain.FolderForms, "formularios/a.txt")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if file.Base64 != "" {
		t.Errorf("text files must not be inlined")
	}
	if !strings.HasPrefix(file.ContentType, "text/plain") {
		t.Errorf("expected sniffed text/plain, got %q", file.ContentType)
	}
}

func TestS3Store_RetrieveMissing(t *testing.T) {
	store := newTestStore(newFakeS3())
	_, err := store.Retrieve(context.Background(), domain.FolderReceipts, "nope.pdf")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3Store_SaveFailureIsExternal(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("s3 down")
	store := newTestStore(fake)

	_, err := store.Save(context.Background(), domain.FolderReceipts, "r.pdf", []byte("%PDF-1.4"))
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if fake.puts != 2 {
		t.Errorf("expected 1 retry (2 puts), got %d", fake.puts)
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	key, err := m.Save(context.Background(), domain.FolderReceipts, "r.pdf", []byte("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	file, err := m.Retrieve(context.Background(), domain.FolderReceipts, key)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if file.ContentType != "application/pdf" || file.Base64 == "" {
		t.Errorf("expected inlined pdf, got %+v", file)
	}
}
