// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed queries the NCBI E-utilities API for article search
// and fetch. Search runs an ESearch query for PMIDs and an EFetch for
// the matching records; FetchArticle retrieves one record by PMID.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/mcq-engine/internal/httputil"
	"github.com/pdiddy/mcq-engine/pkg/types"
)

// E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	esearchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	efetchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// toolName is sent as the E-utilities tool parameter.
const toolName = "mcq-engine"

// maxDisplayAuthors caps the author display string before "et al.".
const maxDisplayAuthors = 3

// Client queries PubMed via the NCBI E-utilities.
type Client struct {
	HTTP *http.Client
	Cfg  types.PubMedConfig
}

// NewClient returns a PubMed client with the given configuration.
func NewClient(cfg types.PubMedConfig) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: cfg.Timeout},
		Cfg:  cfg,
	}
}

// esearchResponse is the JSON shape of an ESearch reply.
type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// articleSet is the XML document returned by EFetch.
type articleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName string `xml:"LastName"`
				ForeName string `xml:"ForeName"`
			} `xml:"AuthorList>Author"`
			Journal struct {
				Issue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

// Search queries PubMed by keywords and returns article metadata for up
// to cfg.MaxResults matches. An empty result list is not an error.
func (c *Client) Search(ctx context.Context, keywords string) ([]types.Article, error) {
	if strings.TrimSpace(keywords) == "" {
		return nil, fmt.Errorf("empty PubMed query")
	}

	maxResults := c.Cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	params := c.baseParams()
	params.Set("term", keywords)
	params.Set("retmax", fmt.Sprintf("%d", maxResults))
	params.Set("retmode", "json")

	var esResp esearchResponse
	if err := c.getJSON(ctx, esearchBase+"?"+params.Encode(), &esResp); err != nil {
		return nil, fmt.Errorf("PubMed search: %w", err)
	}

	ids := esResp.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	return c.fetch(ctx, ids)
}

// FetchArticle retrieves one article by PubMed ID. The ID may carry a
// "PMID:" prefix, which is stripped.
func (c *Client) FetchArticle(ctx context.Context, pmid string) (types.Article, error) {
	pmid = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(pmid), "PMID:"))
	if pmid == "" {
		return types.Article{}, fmt.Errorf("empty PubMed ID")
	}

	articles, err := c.fetch(ctx, []string{pmid})
	if err != nil {
		return types.Article{}, err
	}
	if len(articles) == 0 {
		return types.Article{}, fmt.Errorf("article %s not found", pmid)
	}
	return articles[0], nil
}

func (c *Client) fetch(ctx context.Context, ids []string) ([]types.Article, error) {
	params := c.baseParams()
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, efetchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.Cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.httpClient(), req, 0)
	if err != nil {
		return nil, fmt.Errorf("EFetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("EFetch returned HTTP %d", resp.StatusCode)
	}

	var set articleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("parsing EFetch response: %w", err)
	}

	articles := make([]types.Article, 0, len(set.Articles))
	for _, a := range set.Articles {
		articles = append(articles, convertArticle(a))
	}
	return articles, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.Cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.httpClient(), req, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("tool", toolName)
	if c.Cfg.Email != "" {
		params.Set("email", c.Cfg.Email)
	}
	if c.Cfg.APIKey != "" {
		params.Set("api_key", c.Cfg.APIKey)
	}
	return params
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// convertArticle maps one EFetch record to the flat Article struct.
func convertArticle(a pubmedArticle) types.Article {
	med := a.MedlineCitation

	var authors []string
	for _, au := range med.Article.Authors {
		name := strings.TrimSpace(au.LastName + " " + au.ForeName)
		if name != "" {
			authors = append(authors, name)
		}
	}
	display := strings.Join(truncAuthors(authors), ", ")
	if len(authors) > maxDisplayAuthors {
		display += " et al."
	}

	pubDate := med.Article.Journal.Issue.PubDate
	year := pubDate.Year
	if year == "" {
		year = medlineYear(pubDate.MedlineDate)
	}

	return types.Article{
		PMID:     med.PMID,
		Title:    strings.TrimSpace(med.Article.Title),
		Authors:  display,
		Year:     year,
		Abstract: strings.TrimSpace(strings.Join(med.Article.Abstract.Text, " ")),
	}
}

func truncAuthors(authors []string) []string {
	if len(authors) > maxDisplayAuthors {
		return authors[:maxDisplayAuthors]
	}
	return authors
}

// medlineYear extracts a 4-digit year prefix from a MedlineDate string
// like "2023 Jan-Feb". Non-numeric prefixes yield "Unknown".
func medlineYear(medlineDate string) string {
	medlineDate = strings.TrimSpace(medlineDate)
	if len(medlineDate) >= 4 {
		prefix := medlineDate[:4]
		numeric := true
		for _, r := range prefix {
			if r < '0' || r > '9' {
				numeric = false
				break
			}
		}
		if numeric {
			return prefix
		}
	}
	return "Unknown"
}
