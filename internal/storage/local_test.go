package storage

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestLocalStore_PutOpen(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	ctx := context.Background()

	objectPath := "world/city.sql"
	if err := store.Put(ctx, objectPath, strings.NewReader("INSERT INTO city VALUES (1);")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	rc, err := store.Open(ctx, objectPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "INSERT INTO city VALUES (1);" {
		t.Errorf("content mismatch: got %q", data)
	}

	// Put replaces
	if err := store.Put(ctx, objectPath, strings.NewReader("v2")); err != nil {
		t.Fatal(err)
	}
	rc2, _ := store.Open(ctx, objectPath)
	defer rc2.Close()
	data, _ = io.ReadAll(rc2)
	if string(data) != "v2" {
		t.Errorf("expected replaced content, got %q", data)
	}
}

func TestLocalStore_OpenNotFound(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	_, err := store.Open(context.Background(), "missing.sql")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	ok, err := store.Exists(context.Background(), "missing.sql")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, p := range []string{"world/02-city.sql", "world/01-country.sql", "other/readme.txt"} {
		if err := store.Put(ctx, p, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(ctx, "world")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"world/01-country.sql", "world/02-city.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}

	got, err = store.List(ctx, "nothing-here")
	if err != nil || len(got) != 0 {
		t.Errorf("List of missing prefix = %v, %v", got, err)
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Open(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{Type: "local", Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*LocalStore); !ok {
		t.Errorf("expected *LocalStore, got %T", s)
	}
	if _, err := New(context.Background(), Config{Type: "gcs"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
