package mocks_test

import (
	"context"
	"testing"
	"time"

	"github.com/hmrc/bintray-backup-restore/internal/api"
	testhelpers "github.com/hmrc/bintray-backup-restore/internal/testing"
	"github.com/hmrc/bintray-backup-restore/internal/testing/mocks"
	"github.com/hmrc/bintray-backup-restore/internal/types"
)

func newClient(t *testing.T, fake *mocks.FakeBintray) *api.Client {
	t.Helper()
	client, err := api.NewClient(api.ClientOptions{
		APIBaseURL:      fake.APIBaseURL(),
		DownloadBaseURL: fake.DownloadBaseURL(),
		Organisation:    fake.Organisation,
		Credentials:     types.Credentials{Username: "u", Token: "t"},
		Retry:           api.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	testhelpers.AssertNoError(t, err, "creating client")
	return client
}

func TestFakeBintrayServesCatalog(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	fake.PageSize = 1
	fake.AddPackage(testhelpers.TestPackage("releases", "a", nil))
	fake.AddPackage(testhelpers.TestPackage("releases", "b", nil))
	fake.AddFile(testhelpers.TestFileRecord("releases", "a", "1.0", "uk/a.jar", ""), []byte("1234567890"))

	client := newClient(t, fake)
	ctx := context.Background()

	names, err := client.ListPackageNames(ctx, "releases")
	testhelpers.AssertNoError(t, err, "listing packages")
	testhelpers.AssertEqual(t, len(names), 2, "package count")

	files, err := client.GetPackageFiles(ctx, "releases", "a")
	testhelpers.AssertNoError(t, err, "listing files")
	testhelpers.AssertEqual(t, len(files), 1, "file count")
	testhelpers.AssertEqual(t, files[0].Path, "uk/a.jar", "normalised path")
	testhelpers.AssertEqual(t, files[0].SHA1, "01b307acba4f54f55aafc33bb06bbbf6ca803e9a", "sha1")
}

func TestFakeBintrayAcceptsUploads(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	client := newClient(t, fake)
	ctx := context.Background()

	err := client.CreatePackage(ctx, testhelpers.TestPackage("releases", "p", nil))
	testhelpers.AssertNoError(t, err, "creating package")

	local := testhelpers.WriteFile(t, t.TempDir(), "p.jar", []byte("this is a test file"))
	err = client.UploadFile(ctx, local, testhelpers.TestFileRecord("releases", "p", "1.0", "uk/p.jar", ""))
	testhelpers.AssertNoError(t, err, "uploading")

	data, ok := fake.Content("releases", "uk/p.jar")
	if !ok || string(data) != "this is a test file" {
		t.Fatalf("stored content = %q, %v", data, ok)
	}

	files, err := client.GetPackageFiles(ctx, "releases", "p")
	testhelpers.AssertNoError(t, err, "listing files")
	testhelpers.AssertEqual(t, files[0].SHA1, "5d03965084a5db13c178cbb1ffc120b360353685", "uploaded sha1")
}
