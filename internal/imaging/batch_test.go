package imaging

import (
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writePNG writes a small valid PNG fixture and returns its path.
func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, uniformImage(8, 8, color.NRGBA{R: 90, G: 90, B: 90, A: 255})); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return path
}

func TestLoadBatchCapsAtFiveImages(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 6)
	for i := range paths {
		paths[i] = writePNG(t, dir, string(rune('a'+i))+".png")
	}

	result := LoadBatch(context.Background(), paths, 64)

	if len(result.Items) != 5 {
		t.Fatalf("accepted = %d, want exactly 5", len(result.Items))
	}
	if len(result.Dropped) != 1 {
		t.Fatalf("dropped = %d, want 1", len(result.Dropped))
	}
	// The earliest-added images win; the sixth is the one dropped.
	if result.Dropped[0] != paths[5] {
		t.Errorf("dropped %q, want the sixth image %q", result.Dropped[0], paths[5])
	}
	for i, item := range result.Items {
		if item.Source.Name != paths[i] {
			t.Errorf("item %d = %q, want %q (order preserved)", i, item.Source.Name, paths[i])
		}
	}

	notice := result.Notice()
	if !strings.Contains(notice, "maximum of 5 images") {
		t.Errorf("notice = %q, want it to mention the 5 image maximum", notice)
	}
}

func TestLoadBatchNoticeEmptyWhenUnderCap(t *testing.T) {
	dir := t.TempDir()
	result := LoadBatch(context.Background(), []string{writePNG(t, dir, "only.png")}, 64)
	if result.Notice() != "" {
		t.Errorf("notice = %q, want empty when nothing was dropped", result.Notice())
	}
}

func TestLoadBatchIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good1 := writePNG(t, dir, "good1.png")
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	good2 := writePNG(t, dir, "good2.png")

	result := LoadBatch(context.Background(), []string{good1, bad, good2}, 64)

	if len(result.Items) != 2 {
		t.Fatalf("accepted = %d, want 2 (bad image excluded, siblings kept)", len(result.Items))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(result.Failed))
	}
	if result.Failed[0].Name != bad {
		t.Errorf("failed image = %q, want %q", result.Failed[0].Name, bad)
	}
}

func TestLoadBatchCapAppliesBeforeDecode(t *testing.T) {
	// With 6 images where one of the first five is corrupt, the sixth must
	// stay dropped: the cap applies to the submitted set, not the decodable
	// set.
	dir := t.TempDir()
	paths := make([]string, 6)
	for i := range paths {
		paths[i] = writePNG(t, dir, string(rune('a'+i))+".png")
	}
	if err := os.WriteFile(paths[2], []byte("corrupt"), 0o644); err != nil {
		t.Fatalf("corrupt fixture: %v", err)
	}

	result := LoadBatch(context.Background(), paths, 64)
	if len(result.Items) != 4 {
		t.Errorf("accepted = %d, want 4", len(result.Items))
	}
	if len(result.Dropped) != 1 || result.Dropped[0] != paths[5] {
		t.Errorf("dropped = %v, want just the sixth image", result.Dropped)
	}
}

func TestProcessSourcesResultAccessors(t *testing.T) {
	sources := []*SourceImage{
		{Name: "x.png", Image: uniformImage(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})},
		{Name: "y.png", Image: uniformImage(8, 8, color.NRGBA{R: 200, G: 210, B: 220, A: 255})},
	}

	result := ProcessSources(context.Background(), sources, 64)
	if len(result.Items) != 2 {
		t.Fatalf("accepted = %d, want 2", len(result.Items))
	}

	analyses := result.Analyses()
	if len(analyses) != 2 {
		t.Fatalf("analyses = %d, want 2", len(analyses))
	}
	if analyses[0].Brightness >= analyses[1].Brightness {
		t.Error("analyses out of order: the darker image should come first")
	}

	uploads := result.NormalizedImages()
	if len(uploads) != 2 || len(uploads[0]) == 0 || len(uploads[1]) == 0 {
		t.Error("normalized images missing or empty")
	}
}
