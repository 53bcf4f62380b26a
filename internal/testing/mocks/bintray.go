package mocks

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// Request is one call received by the fake server
type Request struct {
	Method string
	Path   string
	Query  string
}

// FakeBintray is an in-memory Bintray REST and download host.
// The REST API is served under /api and content under /dl.
type FakeBintray struct {
	Organisation string
	// PageSize bounds package listings; zero disables the range headers
	PageSize int

	mu       sync.Mutex
	server   *httptest.Server
	repos    []string
	packages map[string][]string
	metadata map[types.PackageIdentity]types.PackageMetadata
	files    map[types.PackageIdentity][]types.FileRecord
	content  map[string][]byte
	created  []map[string]interface{}
	faults   map[string]int
	requests []Request
}

// NewFakeBintray starts a fake server that is closed when the test ends
func NewFakeBintray(t *testing.T, organisation string) *FakeBintray {
	t.Helper()
	f := &FakeBintray{
		Organisation: organisation,
		packages:     make(map[string][]string),
		metadata:     make(map[types.PackageIdentity]types.PackageMetadata),
		files:        make(map[types.PackageIdentity][]types.FileRecord),
		content:      make(map[string][]byte),
		faults:       make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *FakeBintray) APIBaseURL() string      { return f.server.URL + "/api" }
func (f *FakeBintray) DownloadBaseURL() string { return f.server.URL + "/dl" }

// AddRepository registers an empty repository
func (f *FakeBintray) AddRepository(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addRepositoryLocked(name)
}

func (f *FakeBintray) addRepositoryLocked(name string) {
	for _, r := range f.repos {
		if r == name {
			return
		}
	}
	f.repos = append(f.repos, name)
}

// AddPackage registers a package, creating its repository if needed
func (f *FakeBintray) AddPackage(meta types.PackageMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addPackageLocked(meta)
}

func (f *FakeBintray) addPackageLocked(meta types.PackageMetadata) {
	id := meta.Identity()
	f.addRepositoryLocked(id.Repository)
	if _, ok := f.metadata[id]; !ok {
		f.packages[id.Repository] = append(f.packages[id.Repository], id.Name)
	}
	f.metadata[id] = meta.Clone()
}

// AddFile stores content for record. The SHA-1 is computed when empty.
func (f *FakeBintray) AddFile(record types.FileRecord, content []byte) types.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addFileLocked(record, content)
}

func (f *FakeBintray) addFileLocked(record types.FileRecord, content []byte) types.FileRecord {
	if record.SHA1 == "" {
		sum := sha1.Sum(content)
		record.SHA1 = hex.EncodeToString(sum[:])
	}
	if record.Name == "" {
		record.Name = record.Path[strings.LastIndex(record.Path, "/")+1:]
	}
	record.Size = int64(len(content))

	id := record.Identity()
	list := f.files[id]
	replaced := false
	for i, existing := range list {
		if existing.CanonicalPath() == record.CanonicalPath() {
			list[i] = record
			replaced = true
		}
	}
	if !replaced {
		list = append(list, record)
	}
	f.files[id] = list
	f.content[record.Repository+"/"+record.Path] = append([]byte(nil), content...)
	return record
}

// Fail makes every "METHOD path" request answer with status
func (f *FakeBintray) Fail(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[method+" "+path] = status
}

// Requests returns the calls received so far
func (f *FakeBintray) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// CountRequests returns how many calls used method
func (f *FakeBintray) CountRequests(method string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// Content returns what is stored at repo-relative path
func (f *FakeBintray) Content(repo, path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.content[repo+"/"+path]
	return data, ok
}

// Package returns the stored metadata of a package
func (f *FakeBintray) Package(repo, name string) (types.PackageMetadata, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.metadata[types.PackageIdentity{Repository: repo, Name: name}]
	return meta, ok
}

// CreateRequests returns the decoded bodies of package creation calls
func (f *FakeBintray) CreateRequests() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.created...)
}

func (f *FakeBintray) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
	status, faulted := f.faults[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if faulted {
		http.Error(w, `{"message":"injected failure"}`, status)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/dl/"):
		f.serveDownload(w, r, strings.TrimPrefix(r.URL.Path, "/dl/"))
	case strings.HasPrefix(r.URL.Path, "/api/"):
		f.serveAPI(w, r, strings.TrimPrefix(r.URL.Path, "/api/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeBintray) serveAPI(w http.ResponseWriter, r *http.Request, p string) {
	parts := strings.Split(p, "/")
	if len(parts) < 2 || parts[1] != f.Organisation {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Organisation not found"})
		return
	}

	switch {
	case r.Method == http.MethodGet && parts[0] == "repos" && (len(parts) == 2 || (len(parts) == 3 && parts[2] == "")):
		f.mu.Lock()
		var out []map[string]string
		for _, repo := range f.repos {
			out = append(out, map[string]string{"name": repo, "owner": f.Organisation})
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, out)

	case r.Method == http.MethodGet && parts[0] == "repos" && len(parts) == 4 && parts[3] == "packages":
		f.listPackages(w, r, parts[2])

	case r.Method == http.MethodGet && parts[0] == "packages" && len(parts) == 4:
		f.mu.Lock()
		meta, ok := f.metadata[types.PackageIdentity{Repository: parts[2], Name: parts[3]}]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Package '" + parts[3] + "' was not found"})
			return
		}
		writeJSON(w, http.StatusOK, meta)

	case r.Method == http.MethodGet && parts[0] == "packages" && len(parts) == 5 && parts[4] == "files":
		f.mu.Lock()
		id := types.PackageIdentity{Repository: parts[2], Name: parts[3]}
		_, ok := f.metadata[id]
		listed := make([]types.FileRecord, 0, len(f.files[id]))
		for _, record := range f.files[id] {
			record.Path = "/" + record.Path
			listed = append(listed, record)
		}
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Package '" + parts[3] + "' was not found"})
			return
		}
		writeJSON(w, http.StatusOK, listed)

	case r.Method == http.MethodPost && parts[0] == "packages" && len(parts) == 3:
		f.createPackage(w, r, parts[2])

	case r.Method == http.MethodPut && parts[0] == "content" && len(parts) >= 6:
		f.upload(w, r, parts[2], parts[3], parts[4], strings.Join(parts[5:], "/"))

	default:
		http.NotFound(w, r)
	}
}

func (f *FakeBintray) listPackages(w http.ResponseWriter, r *http.Request, repo string) {
	f.mu.Lock()
	names := append([]string(nil), f.packages[repo]...)
	known := false
	for _, existing := range f.repos {
		known = known || existing == repo
	}
	f.mu.Unlock()
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Repo '" + repo + "' was not found"})
		return
	}

	start, _ := strconv.Atoi(r.URL.Query().Get("start_pos"))
	if start > len(names) {
		start = len(names)
	}
	end := len(names)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	page := make([]map[string]interface{}, 0, end-start)
	for _, name := range names[start:end] {
		page = append(page, map[string]interface{}{"name": name, "linked": false})
	}
	if f.PageSize > 0 {
		w.Header().Set(utils.HeaderRangeEndPos, strconv.Itoa(end-1))
		w.Header().Set(utils.HeaderRangeTotal, strconv.Itoa(len(names)))
	}
	writeJSON(w, http.StatusOK, page)
}

func (f *FakeBintray) createPackage(w http.ResponseWriter, r *http.Request, repo string) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	name, _ := body["name"].(string)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, body)
	id := types.PackageIdentity{Repository: repo, Name: name}
	if _, exists := f.metadata[id]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Package '" + name + "' already exists"})
		return
	}

	meta := types.PackageMetadata{}
	raw, _ := json.Marshal(body)
	_ = json.Unmarshal(raw, &meta)
	meta[types.MetadataKeyRepository] = types.String(repo)
	f.addPackageLocked(meta)
	writeJSON(w, http.StatusCreated, meta)
}

func (f *FakeBintray) upload(w http.ResponseWriter, r *http.Request, repo, pkg, version, path string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	q := r.URL.Query()
	if q.Get("publish") != "1" || q.Get("override") != "1" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "publish and override expected"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.metadata[types.PackageIdentity{Repository: repo, Name: pkg}]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Package '" + pkg + "' was not found"})
		return
	}
	f.addFileLocked(types.FileRecord{Repository: repo, Package: pkg, Version: version, Path: path}, data)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "success"})
}

func (f *FakeBintray) serveDownload(w http.ResponseWriter, r *http.Request, p string) {
	org, rest, ok := strings.Cut(p, "/")
	if !ok || org != f.Organisation || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	data, found := f.content[rest]
	f.mu.Unlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
