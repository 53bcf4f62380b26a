package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hmrc/bintray-backup-restore/internal/types"
)

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Organisation: "hmrc",
		Repository:   "releases",
		RequestType:  types.RequestTypeList,
		TraceID:      "test-trace-id",
	}
}

// TestPackage creates package metadata with the given identity and extra fields
func TestPackage(repo, name string, extra map[string]types.Value) types.PackageMetadata {
	meta := types.PackageMetadata{
		types.MetadataKeyName:       types.String(name),
		types.MetadataKeyRepository: types.String(repo),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

// TestFileRecord creates a file record for repo/pkg/version/path
func TestFileRecord(repo, pkg, version, path, sha1 string) types.FileRecord {
	return types.FileRecord{
		Repository: repo,
		Package:    pkg,
		Version:    version,
		Path:       path,
		SHA1:       sha1,
		Name:       filepath.Base(path),
	}
}

// WriteFile creates a file under root, making parent directories
func WriteFile(t *testing.T, root, rel string, content []byte) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		t.Fatalf("write %s: %v", full, err)
	}
	return full
}

// ReadFile returns the content of root/rel, failing the test if it is missing
func ReadFile(t *testing.T, root, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return data
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
