package manipulation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/tool"
)

func TestDetector_Perform(t *testing.T) {
	var got tool.ImagePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"score":0.8123,"confidence_map":"https://maps.example/conf.png"}`))
	}))
	defer server.Close()

	d, err := New(server.URL, 0, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	claim := model.NewClaim("<image:1>", model.Image{ID: 1, Reference: "https://img.example/a.jpg"})
	res, err := d.Perform(context.Background(), &model.DetectManipulation{Image: "<image:1>"}, claim)
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}

	if got.URL != "https://img.example/a.jpg" {
		t.Errorf("payload URL = %q", got.URL)
	}
	if !res.IsUseful() {
		t.Error("scored result should be useful")
	}

	want := "Manipulation Detection Results\n" +
		"Score: 0.812. (Everything above 0.6 might suggest manipulation.)\n" +
		"Localization map: N/A\n" +
		"Confidence map available: https://maps.example/conf.png.\n" +
		"Noiseprint++: N/A"
	if res.String() != want {
		t.Errorf("String() =\n%s\nwant\n%s", res.String(), want)
	}

	refs := res.(*Result).References()
	if len(refs) != 1 || refs[0] != "Confidence map at: https://maps.example/conf.png" {
		t.Errorf("References() = %v", refs)
	}
}

func TestResult_NoScore(t *testing.T) {
	r := &Result{}
	if r.IsUseful() {
		t.Error("result without score or map should not be useful")
	}
	if !strings.Contains(r.String(), "Score: N/A") {
		t.Errorf("String() = %q, want Score: N/A", r.String())
	}
}

func TestDetector_SummaryPrompt(t *testing.T) {
	d, _ := New("http://localhost:1", 0, nil)
	score := 0.3
	report := model.NewReport(model.NewClaim("Photo of a flood <image:1>"), nil)

	p := d.SummaryPrompt(&model.DetectManipulation{Image: "<image:1>"}, &Result{Score: &score}, report)
	if !strings.Contains(p, "Score: 0.300") {
		t.Errorf("prompt missing result: %s", p)
	}
	if !strings.Contains(p, "Photo of a flood") {
		t.Errorf("prompt missing record: %s", p)
	}
}

func TestDetector_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	d, _ := New(server.URL, 0, nil)
	claim := model.NewClaim("<image:1>", model.Image{ID: 1, Reference: "https://img.example/a.jpg"})

	_, err := d.Perform(context.Background(), &model.DetectManipulation{Image: "<image:1>"}, claim)
	if err == nil || !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("expected unmarshal error, got %v", err)
	}

	_, err = d.Perform(context.Background(), &model.DetectManipulation{Image: "<image:1>"},
		model.NewClaim("x", model.Image{ID: 1, Reference: "/does/not/exist.png"}))
	if err == nil {
		t.Error("expected error for missing local image")
	}

	_, err = d.Perform(context.Background(), model.NewGeolocate("<image:1>"), claim)
	if !errors.Is(err, tool.ErrWrongAction) {
		t.Errorf("expected ErrWrongAction, got %v", err)
	}
}
