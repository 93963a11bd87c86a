// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

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

// extractionPromptTmpl is the prompt sent to the Claude API for one source.
// It instructs the model to extract SNOMED-style relation triplets with
// verbatim evidence sentences.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a medical knowledge extraction system. Read the article below and extract the factual medical knowledge it states as SNOMED-style relation triplets.

For each triplet, identify:
- subject: the entity the fact is about (drug, condition, procedure, finding)
- action: the verb phrase connecting subject and object
- object: the entity the action applies to
- relation: an uppercase SNOMED-like relation label for the action (e.g. "TREATS", "CAUSES", "DIAGNOSES", "PREVENTS", "ASSOCIATED_WITH")
- context_sentences: 2 to 4 sentences copied verbatim from the article that support the fact (preserve exact wording, do not paraphrase)
- schema_valid: true only when the relation label accurately fits the subject and object types, false when you are unsure

Rules:
- Every triplet must reflect a TRUE statement from the article.
- Do not invent facts the article does not state.
- Respond with a JSON object containing a "triplets" array. Do not include any text outside the JSON object.

Example response:
{"triplets": [{"subject": "Metformin", "action": "is first-line therapy for", "object": "type 2 diabetes", "relation": "TREATS", "context_sentences": ["Metformin remains the first-line pharmacologic therapy for type 2 diabetes."], "schema_valid": true}]}

Article title: {{.Title}}

Article content:
{{.Text}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend calls the Claude API to extract triplets from source text.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// tripletEnvelope matches the JSON object the prompt asks the model for.
type tripletEnvelope struct {
	Triplets []types.RawTriplet `json:"triplets"`
}

// ExtractTriplets calls the Claude API with the extraction prompt.
func (c *ClaudeBackend) ExtractTriplets(ctx context.Context, title, text string) ([]types.RawTriplet, error) {
	prompt, err := renderPrompt(title, text)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
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
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var env tripletEnvelope
		if err := json.Unmarshal([]byte(stripCodeFence(block.Text)), &env); err != nil {
			return nil, fmt.Errorf("parsing triplet JSON: %w", err)
		}
		return env.Triplets, nil
	}

	return nil, fmt.Errorf("no text content in Claude API response")
}

// renderPrompt executes the extraction prompt template.
func renderPrompt(title, text string) (string, error) {
	var buf bytes.Buffer
	err := extractionPromptTmpl.Execute(&buf, struct{ Title, Text string }{Title: title, Text: text})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
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
