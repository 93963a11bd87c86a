package extract

import (
	"context"
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

// --- mock backend ---

type mockBackend struct {
	raws     []types.RawTriplet
	err      error
	calls    int
	lastText string
}

func (m *mockBackend) ExtractTriplets(_ context.Context, _ string, text string) ([]types.RawTriplet, error) {
	m.calls++
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	return m.raws, nil
}

// failNTimesBackend fails the first N calls, then succeeds.
type failNTimesBackend struct {
	failures  int
	callCount int
	raws      []types.RawTriplet
}

func (f *failNTimesBackend) ExtractTriplets(_ context.Context, _, _ string) ([]types.RawTriplet, error) {
	f.callCount++
	if f.callCount <= f.failures {
		return nil, fmt.Errorf("transient error (call %d)", f.callCount)
	}
	return f.raws, nil
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

func sampleRaw() types.RawTriplet {
	return types.RawTriplet{
		Subject:          "Metformin",
		Action:           "is first-line therapy for",
		Object:           "type 2 diabetes",
		Relation:         "TREATS",
		ContextSentences: []string{"Metformin remains the first-line pharmacologic therapy for type 2 diabetes."},
		SchemaValid:      true,
	}
}

// --- Extractor.Run ---

func TestRunReturnsBackendTriplets(t *testing.T) {
	backend := &mockBackend{raws: []types.RawTriplet{sampleRaw()}}
	ext := New(backend, types.ExtractionConfig{})

	raws, err := ext.Run(context.Background(), testSource())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("got %d triplets, want 1", len(raws))
	}
	if raws[0].Subject != "Metformin" || raws[0].Relation != "TREATS" {
		t.Errorf("unexpected triplet: %+v", raws[0])
	}
}

func TestRunTrimsTripletFields(t *testing.T) {
	backend := &mockBackend{raws: []types.RawTriplet{{
		Subject:  "  Metformin ",
		Action:   " treats\n",
		Object:   "\ttype 2 diabetes",
		Relation: " TREATS ",
	}}}
	ext := New(backend, types.ExtractionConfig{})

	raws, err := ext.Run(context.Background(), testSource())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := raws[0]
	if got.Subject != "Metformin" || got.Action != "treats" || got.Object != "type 2 diabetes" || got.Relation != "TREATS" {
		t.Errorf("fields not trimmed: %+v", got)
	}
}

func TestRunTruncatesContent(t *testing.T) {
	backend := &mockBackend{}
	ext := New(backend, types.ExtractionConfig{MaxContentChars: 50})

	src := testSource()
	src.Content = strings.Repeat("x", 200)

	if _, err := ext.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(backend.lastText) != 50 {
		t.Errorf("backend saw %d chars, want 50", len(backend.lastText))
	}
}

func TestRunRejectsEmptySource(t *testing.T) {
	ext := New(&mockBackend{}, types.ExtractionConfig{})

	src := testSource()
	src.Content = "   \n"

	if _, err := ext.Run(context.Background(), src); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	backend := &failNTimesBackend{failures: 2, raws: []types.RawTriplet{sampleRaw()}}
	ext := New(backend, types.ExtractionConfig{AIConfig: types.AIConfig{MaxRetries: 3}})

	raws, err := ext.Run(context.Background(), testSource())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("got %d triplets, want 1", len(raws))
	}
	if backend.callCount != 3 {
		t.Errorf("backend called %d times, want 3", backend.callCount)
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("permanent failure")}
	ext := New(backend, types.ExtractionConfig{AIConfig: types.AIConfig{MaxRetries: 2}})

	_, err := ext.Run(context.Background(), testSource())
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if backend.calls != 3 {
		t.Errorf("backend called %d times, want 3", backend.calls)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("always failing")}
	ext := New(backend, types.ExtractionConfig{AIConfig: types.AIConfig{MaxRetries: 5}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ext.Run(ctx, testSource())
	if err == nil {
		t.Fatal("expected error after cancellation")
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

func TestClaudeBackendExtractsTriplets(t *testing.T) {
	envelope := `{"triplets": [{"subject": "Aspirin", "action": "reduces risk of", "object": "myocardial infarction", "relation": "PREVENTS", "context_sentences": ["Aspirin reduced MI risk by 20%."], "schema_valid": true}]}`

	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q, want test-key", got)
		}
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		gotPrompt = req.Messages[0].Content
		fmt.Fprint(w, claudeTextResponse(t, envelope))
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "test-key", Model: "test-model"}
	raws, err := backend.ExtractTriplets(context.Background(), "Aspirin trial", "Aspirin reduced MI risk by 20%.")
	if err != nil {
		t.Fatalf("ExtractTriplets: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("got %d triplets, want 1", len(raws))
	}
	if raws[0].Subject != "Aspirin" || raws[0].Relation != "PREVENTS" || !raws[0].SchemaValid {
		t.Errorf("unexpected triplet: %+v", raws[0])
	}
	if !strings.Contains(gotPrompt, "Aspirin trial") {
		t.Error("prompt missing article title")
	}
	if !strings.Contains(gotPrompt, "Aspirin reduced MI risk by 20%.") {
		t.Error("prompt missing article content")
	}
}

func TestClaudeBackendStripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"triplets\": [{\"subject\": \"A\", \"action\": \"b\", \"object\": \"C\", \"relation\": \"TREATS\", \"schema_valid\": false}]}\n```"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, claudeTextResponse(t, fenced))
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	raws, err := backend.ExtractTriplets(context.Background(), "t", "x")
	if err != nil {
		t.Fatalf("ExtractTriplets: %v", err)
	}
	if len(raws) != 1 || raws[0].Subject != "A" {
		t.Errorf("unexpected triplets: %+v", raws)
	}
}

func TestClaudeBackendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	if _, err := backend.ExtractTriplets(context.Background(), "t", "x"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestClaudeBackendMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, claudeTextResponse(t, "the model rambled instead of returning JSON"))
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	if _, err := backend.ExtractTriplets(context.Background(), "t", "x"); err == nil {
		t.Fatal("expected error for unparseable payload")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with hint", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
