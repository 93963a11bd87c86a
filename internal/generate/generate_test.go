package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// --- mock generator ---

type mockGenerator struct {
	payload   types.GenerationPayload
	err       error
	calls     int
	lastText  string
	lastPrior types.GenerationPayload
}

func (m *mockGenerator) Generate(_ context.Context, src *types.Source, _ *types.Triplet, _ []string) (types.GenerationPayload, error) {
	m.calls++
	m.lastText = src.Content
	if m.err != nil {
		return types.GenerationPayload{}, m.err
	}
	return m.payload, nil
}

func (m *mockGenerator) Refine(_ context.Context, src *types.Source, prior types.GenerationPayload, _ string) (types.GenerationPayload, error) {
	m.calls++
	m.lastText = src.Content
	m.lastPrior = prior
	if m.err != nil {
		return types.GenerationPayload{}, m.err
	}
	return m.payload, nil
}

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	backoffBase = time.Millisecond
	os.Exit(m.Run())
}

func testSource() *types.Source {
	return &types.Source{
		ID:       1,
		SourceID: "PMID:12345",
		Type:     types.SourcePubMed,
		Title:    "Metformin in type 2 diabetes",
		Content:  "Metformin remains the first-line pharmacologic therapy for type 2 diabetes.",
	}
}

func samplePayload() types.GenerationPayload {
	return types.GenerationPayload{
		Stem:          "A 45-year-old patient presents with elevated HbA1c.",
		Question:      "What is the first-line treatment?",
		Options:       []string{"Metformin", "Insulin", "Sulfonylurea", "GLP-1 agonist", "DPP-4 inhibitor"},
		CorrectOption: 0,
		Triplets: []types.RawTriplet{{
			Subject: "Metformin", Action: "treats", Object: "type 2 diabetes",
			Relation: "TREATS", SchemaValid: true,
		}},
		VisualPrompt:  "Medical illustration of metformin mechanism",
		VisualTriplet: "Metformin → reduces → hepatic glucose production",
	}
}

// --- Service ---

func TestServiceGenerateTruncatesContent(t *testing.T) {
	backend := &mockGenerator{payload: samplePayload()}
	svc := NewService(backend, types.GenerationConfig{})

	src := testSource()
	src.Content = strings.Repeat("x", generateContentChars+500)

	payload, err := svc.Generate(context.Background(), src, nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if payload.Question == "" {
		t.Error("empty payload returned")
	}
	if len(backend.lastText) != generateContentChars {
		t.Errorf("backend saw %d chars, want %d", len(backend.lastText), generateContentChars)
	}
}

func TestServiceRefineShorterSnippet(t *testing.T) {
	backend := &mockGenerator{payload: samplePayload()}
	svc := NewService(backend, types.GenerationConfig{})

	src := testSource()
	src.Content = strings.Repeat("y", generateContentChars)

	prior := samplePayload()
	if _, err := svc.Refine(context.Background(), src, prior, "make the stem shorter"); err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(backend.lastText) != refineContentChars {
		t.Errorf("backend saw %d chars, want %d", len(backend.lastText), refineContentChars)
	}
	if backend.lastPrior.Question != prior.Question {
		t.Error("prior payload not forwarded to backend")
	}
}

func TestServiceRetriesThenFails(t *testing.T) {
	backend := &mockGenerator{err: fmt.Errorf("model unavailable")}
	svc := NewService(backend, types.GenerationConfig{AIConfig: types.AIConfig{MaxRetries: 2}})

	if _, err := svc.Generate(context.Background(), testSource(), nil, nil); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if backend.calls != 3 {
		t.Errorf("backend called %d times, want 3", backend.calls)
	}
}

func TestServiceRejectsNilSource(t *testing.T) {
	svc := NewService(&mockGenerator{}, types.GenerationConfig{})
	if _, err := svc.Generate(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

// --- normalizePayload ---

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantQ   string
		wantErr bool
	}{
		{
			name:  "mcq key",
			raw:   `{"mcq": {"stem": "s", "question": "q1", "options": ["a","b","c","d","e"], "correct_option": 2}, "triplets": [], "visual_prompt": "vp"}`,
			wantQ: "q1",
		},
		{
			name:  "mcq_draft key",
			raw:   `{"mcq_draft": {"question": "q2", "options": ["a","b","c","d","e"], "correct_option": 0}}`,
			wantQ: "q2",
		},
		{
			name:    "no question object",
			raw:     `{"triplets": []}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `sorry, here is your question:`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := normalizePayload([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizePayload: %v", err)
			}
			if payload.Question != tt.wantQ {
				t.Errorf("question = %q, want %q", payload.Question, tt.wantQ)
			}
		})
	}
}

func TestNormalizePayloadPrefersMCQKey(t *testing.T) {
	raw := `{"mcq": {"question": "primary", "options": []}, "mcq_draft": {"question": "secondary", "options": []}}`
	payload, err := normalizePayload([]byte(raw))
	if err != nil {
		t.Fatalf("normalizePayload: %v", err)
	}
	if payload.Question != "primary" {
		t.Errorf("question = %q, want primary", payload.Question)
	}
}

// --- ClaudeBackend ---

func claudeTextResponse(t *testing.T, payload string) string {
	t.Helper()
	resp := map[string]any{
		"content": []map[string]string{{"type": "text", "text": payload}},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestClaudeBackendGenerate(t *testing.T) {
	envelope := `{"mcq": {"stem": "vignette", "question": "What treats T2DM?", "options": ["Metformin","Insulin","SU","GLP-1","DPP-4"], "correct_option": 0}, "triplets": [{"subject": "Metformin", "action": "treats", "object": "T2DM", "relation": "TREATS", "schema_valid": true}], "visual_prompt": "pill bottle", "visual_triplet": "Metformin → treats → T2DM"}`

	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotPrompt = req.Messages[0].Content
		fmt.Fprint(w, claudeTextResponse(t, envelope))
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	triplet := &types.Triplet{Subject: "Metformin", Action: "treats", Object: "T2DM", Relation: "TREATS"}
	sentences := []string{"Metformin remains the first-line pharmacologic therapy for type 2 diabetes."}

	payload, err := backend.Generate(context.Background(), testSource(), triplet, sentences)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if payload.Question != "What treats T2DM?" || len(payload.Options) != 5 {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.VisualTriplet != "Metformin → treats → T2DM" {
		t.Errorf("visual triplet = %q", payload.VisualTriplet)
	}
	if !strings.Contains(gotPrompt, "Metformin treats T2DM (TREATS)") {
		t.Error("prompt missing target fact")
	}
	if !strings.Contains(gotPrompt, sentences[0]) {
		t.Error("prompt missing evidence sentence")
	}
}

func TestClaudeBackendGenerateWholeSource(t *testing.T) {
	envelope := `{"mcq": {"question": "q", "options": ["a","b","c","d","e"], "correct_option": 1}}`

	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotPrompt = req.Messages[0].Content
		fmt.Fprint(w, claudeTextResponse(t, envelope))
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	payload, err := backend.Generate(context.Background(), testSource(), nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if payload.CorrectOption != 1 {
		t.Errorf("correct option = %d, want 1", payload.CorrectOption)
	}
	if strings.Contains(gotPrompt, "assess this specific fact") {
		t.Error("whole-source prompt should not carry a target fact block")
	}
}

func TestClaudeBackendRefine(t *testing.T) {
	envelope := `{"mcq": {"question": "refined", "options": ["a","b","c","d","e"], "correct_option": 0}}`

	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotPrompt = req.Messages[0].Content
		fmt.Fprint(w, claudeTextResponse(t, envelope))
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	payload, err := backend.Refine(context.Background(), testSource(), samplePayload(), "distractors too easy")
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if payload.Question != "refined" {
		t.Errorf("question = %q, want refined", payload.Question)
	}
	if !strings.Contains(gotPrompt, "distractors too easy") {
		t.Error("prompt missing feedback")
	}
	if !strings.Contains(gotPrompt, "What is the first-line treatment?") {
		t.Error("prompt missing prior proposal")
	}
}

// --- GeminiImageBackend ---

func TestGeminiImageBackend(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	var gotPath string
	var gotReq geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := geminiResponse{}
		resp.Candidates = []struct {
			Content geminiContent `json:"content"`
		}{{Content: geminiContent{Parts: []geminiPart{{
			InlineData: &geminiInlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(pngBytes)},
		}}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	oldBase := geminiAPIBase
	geminiAPIBase = server.URL
	defer func() { geminiAPIBase = oldBase }()

	backend := &GeminiImageBackend{APIKey: "k", Model: "gemini-2.5-flash-image"}
	data, err := backend.GenerateImage(context.Background(), "metformin illustration", "1024x768")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(data) != string(pngBytes) {
		t.Error("image bytes not round-tripped")
	}
	if !strings.Contains(gotPath, "gemini-2.5-flash-image") {
		t.Errorf("path = %q, missing model", gotPath)
	}
	if got := gotReq.GenerationConfig.ImageConfig.AspectRatio; got != "4:3" {
		t.Errorf("aspect ratio = %q, want 4:3", got)
	}
}

func TestGeminiImageBackendNoImageData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [{"text": "no image, sorry"}]}}]}`)
	}))
	defer server.Close()

	oldBase := geminiAPIBase
	geminiAPIBase = server.URL
	defer func() { geminiAPIBase = oldBase }()

	backend := &GeminiImageBackend{APIKey: "k", Model: "m"}
	if _, err := backend.GenerateImage(context.Background(), "prompt", ""); err == nil {
		t.Fatal("expected error when no inline image data present")
	}
}

func TestGeminiImageBackendEmptyPrompt(t *testing.T) {
	backend := &GeminiImageBackend{APIKey: "k", Model: "m"}
	if _, err := backend.GenerateImage(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1024x1024", "1:1"},
		{"1024x768", "4:3"},
		{"512X512", "1:1"},
		{"16:9", "16:9"},
		{"", "1:1"},
		{"huge", "1:1"},
		{"0x100", "1:1"},
	}
	for _, tt := range tests {
		if got := aspectRatio(tt.in); got != tt.want {
			t.Errorf("aspectRatio(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
