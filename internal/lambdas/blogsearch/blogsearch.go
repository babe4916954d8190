// Package blogsearch implements the aws_blogs_search tool: a structured
// query against the aws.amazon.com site search restricted to blog posts.
package blogsearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
)

// Endpoint is the AWS site search API.
const Endpoint = "https://aws.amazon.com/search/p/2013-01-01/search"

// PageSize is the number of hits per page.
const PageSize = 25

const (
	returnFields = "description,title,url,type_display,marketplace_architecture,marketplace_price,marketplace_operating_system,marketplace_vendor_name,marketplace_vendor_url"
	queryOptions = `{"defaultOperator":"and","fields":["url^5", "title^2", "description", "entry", "categories"]}`
	blogFilters  = `type: 'blogs' (and (not type: 'developertools') (not type: 'solution_providers')) (or (term field=lang 'en'))`
)

// Event is the tool input.
type Event struct {
	Query        string   `json:"query"`
	Page         int      `json:"page,omitempty"`
	IncludeBlogs []string `json:"include_blogs,omitempty"`
}

// Result is one cleaned search hit.
type Result struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// Response is the tool output. Error is set when the search failed, in
// which case Results is empty.
type Response struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// BuildQuery returns the structured query for query, optionally limited
// to the named blogs.
func BuildQuery(query string, blogs []string) string {
	if len(blogs) == 0 {
		return fmt.Sprintf("and (and '%s'  %s )", query, blogFilters)
	}
	parts := make([]string, 0, len(blogs))
	for _, b := range blogs {
		parts = append(parts, fmt.Sprintf("(and '%s' blog_name:'%s' %s )", query, b, blogFilters))
	}
	return "or " + strings.Join(parts, " ")
}

// SearchURL returns the search request URL for the given 1-based page.
func SearchURL(query string, blogs []string, page int) string {
	if page < 1 {
		page = 1
	}
	v := url.Values{}
	v.Set("q", "("+BuildQuery(query, blogs)+")")
	v.Set("size", strconv.Itoa(PageSize))
	v.Set("start", strconv.Itoa((page-1)*PageSize))
	v.Set("sort", "custom_20160114 desc")
	v.Set("q.parser", "structured")
	v.Set("q.options", queryOptions)
	v.Set("highlight.url", "{max_phrases:5}")
	v.Set("highlight.description", "{max_phrases:5}")
	for _, facet := range []string{"type", "ami_os", "ami_provider", "ami_type", "blog_name"} {
		v.Set("facet."+facet, "{}")
	}
	v.Set("return", returnFields)
	return Endpoint + "?" + v.Encode()
}

// CleanHits extracts title, link and description from raw hits, dropping
// author and tag index pages and hits without a URL.
func CleanHits(hits []gjson.Result) []Result {
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		link := hit.Get("fields.url").String()
		if link == "" || strings.Contains(link, "/author/") || strings.Contains(link, "/tag/") {
			continue
		}
		results = append(results, Result{
			Title:       hit.Get("fields.title").String(),
			Link:        link,
			Description: hit.Get("fields.description").String(),
		})
	}
	return results
}

// Searcher runs searches over HTTP.
type Searcher struct {
	Client   *http.Client
	Endpoint string
	Logger   *log.Logger
}

// Search runs the query and returns cleaned hits. Failures are reported in
// Response.Error.
func (s *Searcher) Search(ctx context.Context, ev Event) Response {
	hits, err := s.search(ctx, ev)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("blog search failed", "query", ev.Query, "err", err)
		}
		return Response{Results: []Result{}, Error: fmt.Sprintf("Error in search: %v", err)}
	}
	if s.Logger != nil {
		s.Logger.Info("blog search", "query", ev.Query, "hits", len(hits))
	}
	return Response{Results: CleanHits(hits)}
}

func (s *Searcher) search(ctx context.Context, ev Event) ([]gjson.Result, error) {
	u := SearchURL(ev.Query, ev.IncludeBlogs, ev.Page)
	if s.Endpoint != "" {
		u = s.Endpoint + u[len(Endpoint):]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("search returned invalid JSON")
	}
	return gjson.GetBytes(body, "hits.hit").Array(), nil
}
