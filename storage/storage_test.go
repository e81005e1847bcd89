package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		loc     string
		want    Location
		wantErr bool
	}{
		{"local path", "firmware.dfu", Location{Path: "firmware.dfu"}, false},
		{"absolute path", "/tmp/out.bin", Location{Path: "/tmp/out.bin"}, false},
		{"s3 object", "s3://fw-bucket/releases/v1.dfu", Location{Bucket: "fw-bucket", Key: "releases/v1.dfu"}, false},
		{"s3 missing key", "s3://fw-bucket", Location{}, true},
		{"s3 empty key", "s3://fw-bucket/", Location{}, true},
		{"s3 missing bucket", "s3:///key", Location{}, true},
		{"empty", "", Location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.loc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tt.loc, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLocation(%q) = %+v, want %+v", tt.loc, got, tt.want)
			}
			if got.String() != tt.loc {
				t.Errorf("String() = %q, want %q", got.String(), tt.loc)
			}
		})
	}
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "image.bin")
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	store := New(Options{})
	if err := store.WriteAll(ctx, path, data); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	got, err := store.ReadAll(ctx, path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadAll = % X, want % X", got, data)
	}
}

func TestLocalReadMissing(t *testing.T) {
	store := New(Options{})
	_, err := store.ReadAll(context.Background(), filepath.Join(t.TempDir(), "missing.dfu"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestS3RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewWithClient(fake)

	data := []byte("firmware")
	if err := store.WriteAll(ctx, "s3://bucket/fw/app.bin", data); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if _, ok := fake.objects["bucket/fw/app.bin"]; !ok {
		t.Fatal("object not stored under bucket/key")
	}

	got, err := store.ReadAll(ctx, "s3://bucket/fw/app.bin")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadAll = %q, want %q", got, data)
	}
}

func TestS3Errors(t *testing.T) {
	ctx := context.Background()
	base := errors.New("access denied")
	store := NewWithClient(&fakeS3{objects: map[string][]byte{}, err: base})

	if _, err := store.ReadAll(ctx, "s3://bucket/key"); !errors.Is(err, base) {
		t.Errorf("ReadAll error = %v, want wrapped %v", err, base)
	}
	if err := store.WriteAll(ctx, "s3://bucket/key", []byte{1}); !errors.Is(err, base) {
		t.Errorf("WriteAll error = %v, want wrapped %v", err, base)
	}
}
