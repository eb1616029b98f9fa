package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/arialabs/aria/internal/skills"
)

type webSearchInput struct {
	Query string `json:"query"`
}

var ddgResultPattern = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]*>(.*?)</a>`)
var tagStripper = regexp.MustCompile(`<[^>]*>`)

// WebSearchSkill registers a DuckDuckGo HTML-endpoint search, grounded on
// the teacher's web_search_ddg.go provider (same query URL and User-Agent
// convention), trimmed to its single default provider rather than goclaw's
// Brave/DDG multi-provider fallback chain.
func WebSearchSkill() skills.Skill {
	client := &http.Client{Timeout: 10 * time.Second}
	return skills.Skill{
		Name:        "web_search",
		Description: "Search the web and return a short list of result titles.",
		Schema:      skills.SchemaFor(webSearchInput{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, input json.RawMessage) (*skills.Result, error) {
			var in webSearchInput
			if err := json.Unmarshal(input, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(in.Query))
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aria-gateway/1.0)")

			resp, err := client.Do(req)
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("search request failed: %v", err)), nil
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("read search response: %v", err)), nil
			}

			matches := ddgResultPattern.FindAllStringSubmatch(string(body), 8)
			if len(matches) == 0 {
				return skills.NewResult("no results found"), nil
			}
			var b strings.Builder
			for i, m := range matches {
				title := strings.TrimSpace(tagStripper.ReplaceAllString(m[1], ""))
				fmt.Fprintf(&b, "%d. %s\n", i+1, title)
			}
			return skills.NewResult(b.String()), nil
		},
	}
}

// WebFetchSkill registers a plain GET-and-strip-tags page fetcher, the
// companion tool the keyword auto-selection rule for "search|find|look up"
// also auto-adds alongside web_search (internal/skills/policy.go).
func WebFetchSkill() skills.Skill {
	client := &http.Client{Timeout: 15 * time.Second}
	type input struct {
		URL string `json:"url"`
	}
	return skills.Skill{
		Name:        "web_fetch",
		Description: "Fetch a URL and return its text content with HTML tags stripped.",
		Schema:      skills.SchemaFor(input{}),
		Kind:        skills.KindExecutable,
		Handler: func(ctx context.Context, raw json.RawMessage) (*skills.Result, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return skills.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
			if err != nil {
				return skills.ErrorResult(err.Error()), nil
			}
			resp, err := client.Do(req)
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("fetch failed: %v", err)), nil
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
			if err != nil {
				return skills.ErrorResult(fmt.Sprintf("read response: %v", err)), nil
			}
			text := tagStripper.ReplaceAllString(string(body), " ")
			text = strings.Join(strings.Fields(text), " ")
			const cap = 20_000
			if len(text) > cap {
				text = text[:cap] + "...[truncated]"
			}
			return skills.NewResult(text), nil
		},
	}
}
