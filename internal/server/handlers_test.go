package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fpang/rodin-studio/internal/config"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// fakeBackend plays the remote Rodin API plus its asset CDN.
func fakeBackend(t *testing.T, jobStatus string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("/rodin", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		var resp rodin.SubmitResponse
		resp.UUID = "task-1"
		resp.Jobs.UUIDs = []string{"a"}
		resp.Jobs.SubscriptionKey = "sub-1"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(rodin.StatusResponse{
			Jobs: []rodin.JobStatus{{UUID: "a", Status: jobStatus}},
		})
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(rodin.DownloadResponse{
			Error: "OK",
			List: []rodin.Asset{
				{Name: "model.glb", URL: srv.URL + "/assets/model.glb"},
				{Name: "texture.png", URL: srv.URL + "/assets/texture.png"},
			},
		})
	})
	mux.HandleFunc("/assets/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "model/gltf-binary")
		w.Write([]byte("binary-payload-for-" + r.URL.Path))
	})

	srv = httptest.NewServer(mux)
	return srv
}

func newTestServer(backendURL string) *Server {
	cfg := config.Config{
		APIKey:        "test-key",
		BaseURL:       backendURL,
		PollInterval:  time.Millisecond,
		PollMaxTries:  50,
		NormalizeSize: 64,
	}
	client := rodin.NewClient(cfg.BaseURL, cfg.APIKey, nil)
	return New(cfg, client)
}

// generateForm builds the browser's multipart submission.
func generateForm(t *testing.T, prompt string, imageCount int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("prompt", prompt); err != nil {
		t.Fatalf("write field: %v", err)
	}
	for i := 0; i < imageCount; i++ {
		part, err := w.CreateFormFile("images", "ref.png")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for p := range img.Pix {
			img.Pix[p] = 128
		}
		if err := png.Encode(part, img); err != nil {
			t.Fatalf("encode fixture: %v", err)
		}
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func postGenerate(t *testing.T, router http.Handler, prompt string, imageCount int) map[string]any {
	t.Helper()
	body, contentType := generateForm(t, prompt, imageCount)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func getStatus(t *testing.T, router http.Handler, id string) View {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/generate/"+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view View
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return view
}

func waitForState(t *testing.T, router http.Handler, id, want string) View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view := getStatus(t, router, id)
		if string(view.State) == want {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached state %q", id, want)
	return View{}
}

func TestGenerateToDoneFlow(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusDone)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	resp := postGenerate(t, router, "a red chair", 1)
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("response has no session id")
	}
	enhanced, _ := resp["enhancedPrompt"].(string)
	if !strings.HasPrefix(enhanced, "a red chair. ") {
		t.Errorf("enhancedPrompt = %q, want it to open with the base prompt", enhanced)
	}

	view := waitForState(t, router, id, "done")
	if !strings.HasPrefix(view.ModelURL, "/api/proxy?url=") {
		t.Errorf("modelUrl = %q, want a proxy-wrapped URL", view.ModelURL)
	}
	if !strings.HasSuffix(view.DownloadURL, "/assets/model.glb") {
		t.Errorf("downloadUrl = %q, want the original remote URL", view.DownloadURL)
	}
	if len(view.Assets) != 2 {
		t.Errorf("assets = %d, want the full listing", len(view.Assets))
	}
}

func TestStatusUnknownSession(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusDone)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/generate/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelStopsSession(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusProcessing)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	resp := postGenerate(t, router, "chair", 0)
	id := resp["id"].(string)
	waitForState(t, router, id, "polling")

	req := httptest.NewRequest(http.MethodDelete, "/api/generate/"+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	view := waitForState(t, router, id, "failed")
	if view.Error == "" {
		t.Error("cancelled session should carry an error message")
	}
}

func TestThumbnailServesWebP(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusDone)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	resp := postGenerate(t, router, "chair", 1)
	id := resp["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/generate/"+id+"/thumbnail/0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("thumbnail status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/webp" {
		t.Errorf("Content-Type = %q, want image/webp", ct)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/generate/"+id+"/thumbnail/5", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("out-of-range thumbnail status = %d, want 404", rec.Code)
	}
}

func TestProxyEnforcesAllowList(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusDone)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	// The backend host is on the allow-list.
	target := backend.URL + "/assets/model.glb"
	req := httptest.NewRequest(http.MethodGet, "/api/proxy?url="+url.QueryEscape(target), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed proxy status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "binary-payload-for-") {
		t.Error("proxy did not stream the asset body")
	}

	// Anything else is refused.
	req = httptest.NewRequest(http.MethodGet, "/api/proxy?url="+url.QueryEscape("https://evil.example/x.glb"), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("disallowed proxy status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/proxy", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing url proxy status = %d, want 400", rec.Code)
	}
}

func TestArchiveStreamsZip(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusDone)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	resp := postGenerate(t, router, "chair", 0)
	id := resp["id"].(string)
	waitForState(t, router, id, "done")

	req := httptest.NewRequest(http.MethodGet, "/api/generate/"+id+"/archive", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q, want application/zip", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if len(data) == 0 {
			t.Errorf("entry %s is empty", f.Name)
		}
	}
	if len(names) != 2 || names[0] != "model.glb" || names[1] != "texture.png" {
		t.Errorf("zip entries = %v", names)
	}
}

func TestArchiveBeforeCompletionConflicts(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusProcessing)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	resp := postGenerate(t, router, "chair", 0)
	id := resp["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/generate/"+id+"/archive", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("archive status = %d, want 409 while still polling", rec.Code)
	}
}

func TestGenerateSkipsUndecodableUploads(t *testing.T) {
	backend := fakeBackend(t, rodin.StatusDone)
	defer backend.Close()
	router := newTestServer(backend.URL).Router()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("prompt", "chair")
	part, _ := w.CreateFormFile("images", "broken.png")
	part.Write([]byte("not an image"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/generate", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate status = %d, want 202 despite the bad image", rec.Code)
	}

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	skipped, _ := resp["skippedImages"].([]any)
	if len(skipped) != 1 || skipped[0] != "broken.png" {
		t.Errorf("skippedImages = %v, want just broken.png", skipped)
	}
}

func TestOptionsFromForm(t *testing.T) {
	form := url.Values{
		"condition_mode":       {"fuse"},
		"quality":              {"high"},
		"use_hyper":            {"true"},
		"tier":                 {"Sketch"},
		"TAPose":               {"true"},
		"material":             {"Shaded"},
		"geometry_file_format": {"usdz"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	opts := optionsFromForm(req)
	if opts.ConditionMode != rodin.ConditionFuse || opts.Quality != rodin.QualityHigh ||
		!opts.UseHyper || opts.Tier != rodin.TierSketch || !opts.TAPose ||
		opts.Material != rodin.MaterialShaded || opts.GeometryFormat != "usdz" {
		t.Errorf("parsed options = %+v", opts)
	}

	// Garbage or absent values keep the defaults.
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("quality=turbo&tier=Mega"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if got := optionsFromForm(req); got != rodin.DefaultOptions() {
		t.Errorf("options = %+v, want the defaults", got)
	}
}
