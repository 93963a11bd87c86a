// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// generationPromptTmpl asks the model for a complete question proposal.
// When a target fact is present the question must assess that fact;
// otherwise the model picks the most examinable knowledge in the article.
var generationPromptTmpl = template.Must(template.New("generation").Parse(`You are a medical MCQ author. Using the article below, produce:
1. A single multiple-choice question with exactly 5 options and exactly one correct answer.
2. At least one SNOMED-style relation triplet describing the knowledge assessed, with 2-4 verbatim evidence sentences from the article.
3. An optimized visual prompt describing an illustration that matches the scenario, and a short "subject → action → object" visual triplet naming what it depicts.

Return STRICT JSON with this schema:
{
  "mcq": {
    "stem": "clinical vignette",
    "question": "...",
    "options": ["A", "B", "C", "D", "E"],
    "correct_option": 0
  },
  "triplets": [
    {
      "subject": "...",
      "action": "...",
      "object": "...",
      "relation": "SNOMED-like verb",
      "context_sentences": ["verbatim sentence from the article"],
      "schema_valid": true
    }
  ],
  "visual_prompt": "text describing the desired medical illustration",
  "visual_triplet": "Subject → action → object"
}

Rules:
- Options must be medically plausible.
- Triplets must reflect TRUE statements from the article (at least one triplet).
- context_sentences must be copied verbatim from the article, never paraphrased.
- visual_prompt should be concise (80 words or fewer).
- DO NOT add commentary outside the JSON.
{{if .Fact}}
The question must assess this specific fact:
{{.Fact}}
{{if .Sentences}}
Evidence sentences for the fact:
{{range .Sentences}}- {{.}}
{{end}}{{end}}{{end}}
Article title: {{.Title}}

Article content:
{{.Text}}
`))

// refinementPromptTmpl reworks a prior proposal using reviewer feedback.
var refinementPromptTmpl = template.Must(template.New("refinement").Parse(`A medical reviewer provided feedback on an MCQ draft. Return an updated proposal as STRICT JSON with the same schema as before (keys "mcq", "triplets", "visual_prompt", "visual_triplet"). Apply the feedback while keeping the question grounded in the article. DO NOT add commentary outside the JSON.

Feedback:
{{.Feedback}}

Previous proposal JSON:
{{.Prior}}

Article title: {{.Title}}

Article snippet:
{{.Text}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend calls the Claude API to author and refine questions.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// mcqBlock is the nested question object in the model's response.
type mcqBlock struct {
	Stem          string   `json:"stem"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
}

// payloadEnvelope matches the JSON object the prompts ask for. Some model
// turns emit the question under "mcq_draft" instead of "mcq"; both are
// accepted here so nothing downstream branches on key shape.
type payloadEnvelope struct {
	MCQ           *mcqBlock          `json:"mcq"`
	MCQDraft      *mcqBlock          `json:"mcq_draft"`
	Triplets      []types.RawTriplet `json:"triplets"`
	VisualPrompt  string             `json:"visual_prompt"`
	VisualTriplet string             `json:"visual_triplet"`
}

// Generate asks the model for a fresh question proposal.
func (c *ClaudeBackend) Generate(ctx context.Context, src *types.Source, triplet *types.Triplet, sentences []string) (types.GenerationPayload, error) {
	data := struct {
		Title, Text, Fact string
		Sentences         []string
	}{
		Title:     sourceTitle(src),
		Text:      src.Content,
		Sentences: sentences,
	}
	if triplet != nil {
		data.Fact = fmt.Sprintf("%s %s %s (%s)", triplet.Subject, triplet.Action, triplet.Object, triplet.Relation)
	}

	var buf bytes.Buffer
	if err := generationPromptTmpl.Execute(&buf, data); err != nil {
		return types.GenerationPayload{}, fmt.Errorf("rendering prompt: %w", err)
	}
	return c.call(ctx, buf.String())
}

// Refine asks the model to rework a prior proposal per reviewer feedback.
func (c *ClaudeBackend) Refine(ctx context.Context, src *types.Source, prior types.GenerationPayload, feedback string) (types.GenerationPayload, error) {
	priorJSON, err := json.Marshal(prior)
	if err != nil {
		return types.GenerationPayload{}, fmt.Errorf("marshaling prior proposal: %w", err)
	}

	data := struct{ Title, Text, Prior, Feedback string }{
		Title:    sourceTitle(src),
		Text:     src.Content,
		Prior:    string(priorJSON),
		Feedback: feedback,
	}

	var buf bytes.Buffer
	if err := refinementPromptTmpl.Execute(&buf, data); err != nil {
		return types.GenerationPayload{}, fmt.Errorf("rendering prompt: %w", err)
	}
	return c.call(ctx, buf.String())
}

// call sends one prompt to the Claude API and normalizes the response.
func (c *ClaudeBackend) call(ctx context.Context, prompt string) (types.GenerationPayload, error) {
	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return types.GenerationPayload{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return types.GenerationPayload{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return types.GenerationPayload{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return types.GenerationPayload{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return types.GenerationPayload{}, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		return normalizePayload([]byte(stripCodeFence(block.Text)))
	}

	return types.GenerationPayload{}, fmt.Errorf("no text content in Claude API response")
}

// normalizePayload parses the model's JSON and flattens it into one
// fixed payload shape.
func normalizePayload(raw []byte) (types.GenerationPayload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.GenerationPayload{}, fmt.Errorf("parsing proposal JSON: %w", err)
	}

	block := env.MCQ
	if block == nil {
		block = env.MCQDraft
	}
	if block == nil {
		return types.GenerationPayload{}, fmt.Errorf("proposal JSON has no question object")
	}

	return types.GenerationPayload{
		Stem:          strings.TrimSpace(block.Stem),
		Question:      strings.TrimSpace(block.Question),
		Options:       block.Options,
		CorrectOption: block.CorrectOption,
		Triplets:      env.Triplets,
		VisualPrompt:  strings.TrimSpace(env.VisualPrompt),
		VisualTriplet: strings.TrimSpace(env.VisualTriplet),
	}, nil
}

func sourceTitle(src *types.Source) string {
	if src.Title != "" {
		return src.Title
	}
	return src.SourceID
}

// stripCodeFence removes a Markdown code fence the model may have wrapped
// around its JSON, including an optional "json" language hint.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "json"))
	}
	return s
}
