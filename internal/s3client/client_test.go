package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func TestNew_RequiresBucket(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), Config{Endpoint: "http://localhost:9000"}); err == nil {
		t.Error("New() without bucket should fail")
	}
}

func TestNew_StaticCredentials(t *testing.T) {
	t.Parallel()
	c, err := New(context.Background(), Config{
		Endpoint:    "http://localhost:9000",
		AccessKeyID: "key",
		SecretKey:   "secret",
		Bucket:      "contexts",
		PathStyle:   true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.bucket != "contexts" {
		t.Errorf("bucket = %q", c.bucket)
	}
}

func responseError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("http error"),
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"not found", fmt.Errorf("wrapped: %w", &types.NotFound{}), true},
		{"api code", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"http 404", responseError(http.StatusNotFound), true},
		{"http 500", responseError(http.StatusInternalServerError), false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("%s: isNotFound() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"api code", &smithy.GenericAPIError{Code: "PreconditionFailed"}, true},
		{"r2 conflict", &smithy.GenericAPIError{Code: "ConditionalRequestConflict"}, true},
		{"http 412", responseError(http.StatusPreconditionFailed), true},
		{"http 403", responseError(http.StatusForbidden), false},
		{"other", errors.New("PreconditionFailed in text only"), false},
	}
	for _, tt := range tests {
		if got := isPreconditionFailed(tt.err); got != tt.want {
			t.Errorf("%s: isPreconditionFailed() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTrimETag(t *testing.T) {
	t.Parallel()
	etag := `"abc123"`
	if got := trimETag(&etag); got != "abc123" {
		t.Errorf("trimETag() = %q", got)
	}
	if got := trimETag(nil); got != "" {
		t.Errorf("trimETag(nil) = %q", got)
	}
}

func TestCompressDecompress(t *testing.T) {
	t.Parallel()
	data := []byte(strings.Repeat(`{"id":"42","state":"awaiting_name"}`, 100))

	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("compressed size %d not smaller than %d", len(compressed), len(data))
	}

	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("round trip mismatch")
	}

	if _, err := Decompress([]byte("not zstd")); err == nil {
		t.Error("Decompress() of garbage should fail")
	}
}
