package storage

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestObjectKeys(t *testing.T) {
	if got := OriginalKey("u1", "j1", "PNG"); got != "originals/u1/j1.png" {
		t.Fatalf("unexpected original key %q", got)
	}
	if got := RestoredKey("u1", "j1", ".png"); got != "restored/u1/j1.png" {
		t.Fatalf("unexpected restored key %q", got)
	}
	if got := UserPrefix(RestoredPrefix, "u1"); got != "restored/u1/" {
		t.Fatalf("unexpected prefix %q", got)
	}
	if KindOf("restored/u1/j1.png") != RestoredPrefix || KindOf("other/x") != "" || KindOf("nokind") != "" {
		t.Fatalf("unexpected kind detection")
	}
}

func TestExtForContentType(t *testing.T) {
	cases := map[string]string{"image/png": ".png", "image/jpeg": ".jpg", "IMAGE/WEBP": ".webp"}
	for ct, want := range cases {
		got, ok := ExtForContentType(ct)
		if !ok || got != want {
			t.Fatalf("ExtForContentType(%q) = %q, %v", ct, got, ok)
		}
	}
	if _, ok := ExtForContentType("application/pdf"); ok {
		t.Fatalf("pdf must not be accepted")
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if IsNoSuchKey(nil) {
		t.Fatalf("nil is not NoSuchKey")
	}
	if !IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatalf("expected NoSuchKey match")
	}
	if !IsNoSuchKey(errors.New("The specified key does not exist.")) {
		t.Fatalf("expected string fallback match")
	}
	if IsNoSuchKey(errors.New("connection refused")) {
		t.Fatalf("unexpected match")
	}
	if !IsNoSuchKey(fmt.Errorf("stat original: %w", minio.ErrorResponse{Code: "NoSuchKey"})) {
		t.Fatalf("expected wrapped NoSuchKey match")
	}
	if !IsNoSuchKey(minio.ErrorResponse{StatusCode: http.StatusNotFound}) {
		t.Fatalf("expected bare 404 match")
	}
	if IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}) {
		t.Fatalf("missing bucket is not a missing object")
	}
	if IsNoSuchKey(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}) {
		t.Fatalf("access denied is not a missing object")
	}
}
