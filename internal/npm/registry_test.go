package npm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const packument = `{
  "name": "@acme/widget",
  "dist-tags": {"latest": "1.3.0", "next": "2.0.0-rc.1"},
  "versions": {
    "1.2.0": {},
    "1.3.0": {},
    "2.0.0-rc.1": {}
  },
  "time": {
    "1.3.0": "2026-08-20T12:00:00.000Z"
  }
}`

func testRegistry(t *testing.T, handler http.HandlerFunc) *Registry {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r := NewRegistry(srv.URL)
	r.downloadsURL = srv.URL
	return r
}

func packumentHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/@acme%2Fwidget", "/@acme/widget":
			_, _ = w.Write([]byte(packument))
		default:
			http.NotFound(w, req)
		}
	}
}

func TestVersionExists(t *testing.T) {
	r := testRegistry(t, packumentHandler(t))
	ctx := context.Background()

	exists, err := r.VersionExists(ctx, "@acme/widget", "1.3.0")
	if err != nil {
		t.Fatalf("VersionExists() failed: %v", err)
	}
	if !exists {
		t.Error("VersionExists(1.3.0) = false")
	}

	exists, err = r.VersionExists(ctx, "@acme/widget", "9.9.9")
	if err != nil {
		t.Fatalf("VersionExists() failed: %v", err)
	}
	if exists {
		t.Error("VersionExists(9.9.9) = true")
	}

	// Unknown package: not an error, just absent.
	exists, err = r.VersionExists(ctx, "nope", "1.0.0")
	if err != nil {
		t.Fatalf("VersionExists(unknown pkg) failed: %v", err)
	}
	if exists {
		t.Error("VersionExists(unknown pkg) = true")
	}
}

func TestDistTag(t *testing.T) {
	r := testRegistry(t, packumentHandler(t))
	ctx := context.Background()

	v, err := r.DistTag(ctx, "@acme/widget", "latest")
	if err != nil {
		t.Fatalf("DistTag() failed: %v", err)
	}
	if v != "1.3.0" {
		t.Errorf("DistTag(latest) = %s", v)
	}

	if _, err := r.DistTag(ctx, "@acme/widget", "beta"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("DistTag(beta) error = %v, want ErrVersionNotFound", err)
	}
}

func TestVersionsSorted(t *testing.T) {
	r := testRegistry(t, packumentHandler(t))

	versions, err := r.Versions(context.Background(), "@acme/widget")
	if err != nil {
		t.Fatalf("Versions() failed: %v", err)
	}
	want := []string{"2.0.0-rc.1", "1.3.0", "1.2.0"}
	if len(versions) != len(want) {
		t.Fatalf("Versions() = %v", versions)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Errorf("versions[%d] = %s, want %s", i, versions[i], want[i])
		}
	}
}

func TestPreviousVersion(t *testing.T) {
	r := testRegistry(t, packumentHandler(t))
	ctx := context.Background()

	prev, err := r.PreviousVersion(ctx, "@acme/widget", "1.3.0")
	if err != nil {
		t.Fatalf("PreviousVersion() failed: %v", err)
	}
	if prev != "1.2.0" {
		t.Errorf("PreviousVersion(1.3.0) = %s, want 1.2.0", prev)
	}

	if _, err := r.PreviousVersion(ctx, "@acme/widget", "1.2.0"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("PreviousVersion(1.2.0) error = %v, want ErrVersionNotFound", err)
	}
}

func TestPublishedAt(t *testing.T) {
	r := testRegistry(t, packumentHandler(t))

	at, err := r.PublishedAt(context.Background(), "@acme/widget", "1.3.0")
	if err != nil {
		t.Fatalf("PublishedAt() failed: %v", err)
	}
	if at.Format("2006-01-02") != "2026-08-20" {
		t.Errorf("PublishedAt() = %v", at)
	}
}

func TestDownloads(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"downloads": 1234, "package": "@acme/widget"}`))
	})

	n, err := r.Downloads(context.Background(), "@acme/widget")
	if err != nil {
		t.Fatalf("Downloads() failed: %v", err)
	}
	if n != 1234 {
		t.Errorf("Downloads() = %d", n)
	}
}

func TestWaitForVersion(t *testing.T) {
	var calls int
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		calls++
		if calls < 3 {
			_, _ = w.Write([]byte(`{"name":"@acme/widget","versions":{}}`))
			return
		}
		_, _ = w.Write([]byte(packument))
	})

	elapsed, err := r.WaitForVersion(context.Background(), "@acme/widget", "1.3.0", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForVersion() failed: %v", err)
	}
	if calls < 3 {
		t.Errorf("WaitForVersion() polled %d times, want >= 3", calls)
	}
	if elapsed <= 0 {
		t.Error("WaitForVersion() elapsed = 0")
	}
}

func TestWaitForVersionTimeout(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"name":"@acme/widget","versions":{}}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.WaitForVersion(ctx, "@acme/widget", "1.3.0", 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForVersion() error = %v, want deadline exceeded", err)
	}
}

func TestWaitForVersionGivesUpWithoutDeadline(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"name":"@acme/widget","versions":{}}`))
	})
	r.maxWait = 50 * time.Millisecond

	// No deadline on the context: the client's own cap must stop the
	// poll instead of spinning forever.
	_, err := r.WaitForVersion(context.Background(), "@acme/widget", "9.9.9", 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForVersion() error = %v, want deadline exceeded", err)
	}
}

func TestCheckTarball(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/@acme%2Fwidget", "/@acme/widget":
			doc := `{
			  "name": "@acme/widget",
			  "dist-tags": {"latest": "1.3.0"},
			  "versions": {
			    "1.3.0": {"dist": {"tarball": "` + srvURL + `/widget-1.3.0.tgz", "shasum": "abc"}}
			  }
			}`
			_, _ = w.Write([]byte(doc))
		case "/widget-1.3.0.tgz":
			if req.Method != http.MethodHead {
				t.Errorf("tarball request method = %s, want HEAD", req.Method)
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, req)
		}
	}))
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	r := NewRegistry(srv.URL)
	ctx := context.Background()

	tarball, err := r.CheckTarball(ctx, "@acme/widget", "1.3.0")
	if err != nil {
		t.Fatalf("CheckTarball() failed: %v", err)
	}
	if tarball != srvURL+"/widget-1.3.0.tgz" {
		t.Errorf("CheckTarball() = %s", tarball)
	}

	if _, err := r.CheckTarball(ctx, "@acme/widget", "9.9.9"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("CheckTarball(9.9.9) error = %v, want ErrVersionNotFound", err)
	}
}

func TestParseAudit(t *testing.T) {
	out := []byte(`{"metadata":{"vulnerabilities":{"info":0,"low":1,"moderate":2,"high":0,"critical":1,"total":4}}}`)
	summary, err := ParseAudit(out)
	if err != nil {
		t.Fatalf("ParseAudit() failed: %v", err)
	}
	if summary.Total != 4 || summary.Critical != 1 {
		t.Errorf("ParseAudit() = %+v", summary)
	}

	if !summary.Blocking("high") {
		t.Error("Blocking(high) = false with a critical finding")
	}
	if !summary.Blocking("critical") {
		t.Error("Blocking(critical) = false")
	}

	summary.Critical = 0
	if summary.Blocking("high") {
		t.Error("Blocking(high) = true with only low/moderate findings")
	}
	if !summary.Blocking("moderate") {
		t.Error("Blocking(moderate) = false with moderate findings")
	}
}
