// Package webextract implements the web_extract tool: fetch pages, reduce
// them to text and format the results for a language model.
package webextract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
	"github.com/charmbracelet/log"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/lambdas"
)

// ToolName is the gateway tool served by this function.
const ToolName = "web_extract"

// UserAgent is sent with every page request.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// FetchTimeout bounds each page request.
const FetchTimeout = 10 * time.Second

var jsonURL = regexp.MustCompile(`"url"\s*:\s*"([^"]+)"`)

// URLList accepts either a single URL string or a list of URLs.
type URLList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *URLList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = URLList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("urls must be a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// Event is the tool input.
type Event struct {
	URLs          URLList `json:"urls"`
	IncludeImages bool    `json:"include_images,omitempty"`
	ExtractDepth  string  `json:"extract_depth,omitempty"`
}

// Response is the Lambda output.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Page is the extraction result of one URL.
type Page struct {
	URL        string
	RawContent string
	Images     []string
}

// CleanURL unwraps URLs passed as JSON fragments ({"url": "..."}),
// defaults the scheme to https and normalizes the result.
func CleanURL(raw string) string {
	u := strings.TrimSpace(raw)
	if strings.HasPrefix(u, "{") && strings.Contains(u, `"url":`) {
		if m := jsonURL.FindStringSubmatch(u); m != nil {
			u = m[1]
		}
	}
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "https://" + u
	}
	if normalized, err := purell.NormalizeURLString(u, purell.FlagsSafe|purell.FlagRemoveDotSegments); err == nil {
		return normalized
	}
	return u
}

// Extractor fetches pages.
type Extractor struct {
	Client *http.Client
	Logger *log.Logger
}

// Handle serves the Lambda invocation.
func (e *Extractor) Handle(ctx context.Context, ev Event) (Response, error) {
	tool := lambdas.ToolName(ctx)
	if e.Logger != nil {
		e.Logger.Info("web extract request", "tool", tool, "urls", len(ev.URLs))
	}
	if tool != "" && tool != ToolName {
		return Response{StatusCode: http.StatusOK, Body: "no such tool"}, nil
	}
	return Response{StatusCode: http.StatusOK, Body: e.Extract(ctx, ev)}, nil
}

// Extract fetches every URL in ev and returns the formatted report. Pages
// that cannot be fetched are reported without content.
func (e *Extractor) Extract(ctx context.Context, ev Event) string {
	pages := make([]Page, 0, len(ev.URLs))
	for _, raw := range ev.URLs {
		u := CleanURL(raw)
		text, images, err := e.fetch(ctx, u, ev.IncludeImages)
		if err != nil && e.Logger != nil {
			e.Logger.Warn("fetch failed", "url", u, "err", err)
		}
		pages = append(pages, Page{URL: u, RawContent: text, Images: images})
	}
	return FormatResults(pages)
}

func (e *Extractor) fetch(ctx context.Context, pageURL string, withImages bool) (string, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("fetching %s: %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	var images []string
	if withImages {
		images = imageURLs(doc, resp.Request.URL)
	}
	return HTMLText(doc), images, nil
}

// HTMLText returns the visible text of doc, one trimmed line per text
// line with blank lines removed.
func HTMLText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()
	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func imageURLs(doc *goquery.Document, base *url.URL) []string {
	var out []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil || src == "" {
			return
		}
		out = append(out, base.ResolveReference(ref).String())
	})
	return out
}

// FormatResults renders pages as numbered EXTRACT RESULT sections listing
// at most three images each.
func FormatResults(pages []Page) string {
	if len(pages) == 0 {
		return "No extract results found."
	}
	var sb strings.Builder
	sb.WriteString("\n")
	for i, p := range pages {
		fmt.Fprintf(&sb, "\nEXTRACT RESULT %d:\n", i+1)
		fmt.Fprintf(&sb, "URL: %s\n", p.URL)
		if p.RawContent != "" {
			fmt.Fprintf(&sb, "Content: %s\n", p.RawContent)
		} else {
			sb.WriteString("Content: No content extracted\n")
		}
		if len(p.Images) > 0 {
			fmt.Fprintf(&sb, "Images found: %d images\n", len(p.Images))
			for j, img := range p.Images[:min(3, len(p.Images))] {
				fmt.Fprintf(&sb, "  Image %d: %s\n", j+1, img)
			}
			if len(p.Images) > 3 {
				fmt.Fprintf(&sb, "  ... and %d more images\n", len(p.Images)-3)
			}
		}
	}
	return sb.String()
}
