package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 serves the subset of the S3 REST API the store uses, path style.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, parts[0], prefix, len(keys))
		for _, k := range keys {
			fmt.Fprintf(w, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objects[k]))
		}
		fmt.Fprint(w, "</ListBucketResult>")
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	store := NewS3StoreWithClient(client, "datasets")
	store.backoff = nil
	return store, fake
}

func TestS3Store_PutOpenExists(t *testing.T) {
	store, fake := newFakeS3Store(t)
	ctx := context.Background()

	if err := store.Put(ctx, "world/world.sql", strings.NewReader("SELECT 1;")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if string(fake.objects["world/world.sql"]) != "SELECT 1;" {
		t.Errorf("stored %q", fake.objects["world/world.sql"])
	}

	ok, err := store.Exists(ctx, "world/world.sql")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, err = store.Exists(ctx, "world/missing.sql")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}

	rc, err := store.Open(ctx, "world/world.sql")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "SELECT 1;" {
		t.Errorf("content = %q", data)
	}

	if _, err := store.Open(ctx, "world/missing.sql"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestS3Store_List(t *testing.T) {
	store, fake := newFakeS3Store(t)
	fake.objects["world/b.sql"] = []byte("b")
	fake.objects["world/a.sql"] = []byte("a")
	fake.objects["other/c.sql"] = []byte("c")

	got, err := store.List(context.Background(), "world/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "world/a.sql" || got[1] != "world/b.sql" {
		t.Errorf("List = %v", got)
	}
}

// flakyS3 answers GET with 503 for the first failures requests, then
// serves body. A missing body answers NoSuchKey.
type flakyS3 struct {
	failures int32
	body     string
	calls    atomic.Int32
}

func (f *flakyS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	w.Header().Set("Content-Type", "application/xml")
	switch {
	case n <= f.failures:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>ServiceUnavailable</Code><Message>Please reduce your request rate.</Message></Error>`)
	case f.body == "":
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, f.body)
	}
}

func newFlakyS3Store(t *testing.T, fake *flakyS3) *S3Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
		Retryer:      aws.NopRetryer{},
	})
	store := NewS3StoreWithClient(client, "datasets")
	store.backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return store
}

func TestS3Store_DefaultBackoff(t *testing.T) {
	store := NewS3StoreWithClient(s3.New(s3.Options{Region: "us-east-1"}), "datasets")
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(store.backoff) != len(want) {
		t.Fatalf("backoff = %v", store.backoff)
	}
	for i := range want {
		if store.backoff[i] != want[i] {
			t.Errorf("backoff = %v, want %v", store.backoff, want)
		}
	}
}

func TestS3Store_Retries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		body      string
		wantCalls int32
		wantErr   error
	}{
		{name: "transient then ok", failures: 2, body: "SELECT 1;", wantCalls: 3},
		{name: "missing key is not retried", body: "", wantCalls: 1, wantErr: ErrObjectNotFound},
		{name: "persistent failure", failures: 10, body: "x", wantCalls: 4, wantErr: ErrDownloadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &flakyS3{failures: tt.failures, body: tt.body}
			store := newFlakyS3Store(t, fake)

			rc, err := store.Open(context.Background(), "world/world.sql")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatal(err)
				}
				data, _ := io.ReadAll(rc)
				rc.Close()
				if string(data) != tt.body {
					t.Errorf("content = %q", data)
				}
			}
			if got := fake.calls.Load(); got != tt.wantCalls {
				t.Errorf("requests = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}
