// Package newssite serves a small server-rendered search site shaped like
// the news pages the crawler targets. Tests use it through httptest.
package newssite

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Item is one search result.
type Item struct {
	Slug        string
	Title       string
	Description string
	// Live is rendered in the relative timestamp element, Absolute in the
	// fallback one. Either may be empty.
	Live     string
	Absolute string
	HasImage bool
	// NoLink omits the item's link element.
	NoLink bool
}

// Site is a fake search site. Pages holds the results for each page of the
// newest-first listing.
type Site struct {
	Pages      [][]Item
	Categories []string
	// BrokenPages makes the results page fail with HTTP 500 for the listed
	// page numbers (1-based).
	BrokenPages map[int]bool

	mu       sync.Mutex
	requests []string
	server   *httptest.Server
}

// Start serves the site until Close is called.
func (s *Site) Start() *Site {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/img/", s.handleImage)
	s.server = httptest.NewServer(mux)
	return s
}

// URL is the home page address.
func (s *Site) URL() string {
	return s.server.URL + "/"
}

// Close stops the server.
func (s *Site) Close() {
	s.server.Close()
}

// Requests returns every request URI received so far, in order.
func (s *Site) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// ResultPagesServed counts result page requests for the given page number.
func (s *Site) ResultPagesServed(page int) int {
	count := 0
	for _, uri := range s.Requests() {
		u, err := url.Parse(uri)
		if err != nil || u.Path != "/search" {
			continue
		}
		if pageParam(u.Query()) == page {
			count++
		}
	}
	return count
}

func (s *Site) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.URL.RequestURI())
}

func (s *Site) handleHome(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, `<html><body>
<button class="SearchOverlay-search-button" type="button">Search</button>
<form class="SearchOverlay-search-form" action="/search" method="get">
  <input class="SearchOverlay-search-input" type="text" name="q">
  <button class="SearchOverlay-search-submit" type="submit">Go</button>
</form>
</body></html>`)
}

func (s *Site) handleImage(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	w.Header().Set("Content-Type", "image/png")
	fmt.Fprintf(w, "PNG:%s", strings.TrimPrefix(r.URL.Path, "/img/"))
}

func pageParam(q url.Values) int {
	page, err := strconv.Atoi(q.Get("p"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (s *Site) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	q := r.URL.Query()
	page := pageParam(q)

	if s.BrokenPages[page] {
		http.Error(w, "upstream failure", http.StatusInternalServerError)
		return
	}

	keyword := q.Get("q")
	var b strings.Builder
	b.WriteString("<html><body>\n")

	// Sort control
	fmt.Fprintf(&b, `<form class="SearchResultsModule-sort" action="/search" method="get">
  <input type="hidden" name="q" value="%s">
  <select class="Select-input" name="s">
    <option value="0">Relevance</option>
    <option value="3">Newest</option>
  </select>
</form>
`, html.EscapeString(keyword))

	// Category filters
	b.WriteString(`<button class="SearchResultsModule-filters-open" type="button">Filters</button>` + "\n")
	fmt.Fprintf(&b, `<form class="SearchResultsModule-filters" action="/search" method="get">
  <input type="hidden" name="q" value="%s">
  <input type="hidden" name="s" value="%s">
  <div class="SearchFilter-content">
`, html.EscapeString(keyword), html.EscapeString(q.Get("s")))
	for _, category := range s.Categories {
		fmt.Fprintf(&b, `    <label class="CheckboxInput-label"><input type="checkbox" name="f" value="%s"> %s</label>
`, html.EscapeString(strings.ToLower(category)), html.EscapeString(category))
	}
	b.WriteString(`  </div>
  <button class="SearchResultsModule-filters-applyButton" type="submit">Apply</button>
</form>
`)

	b.WriteString(`<div class="SearchResultsModule-results">` + "\n")
	if page <= len(s.Pages) {
		for _, item := range s.Pages[page-1] {
			writeItem(&b, item)
		}
	}
	b.WriteString("</div>\n")

	if page < len(s.Pages) {
		next := url.Values{}
		for k, v := range q {
			next[k] = v
		}
		next.Set("p", strconv.Itoa(page+1))
		fmt.Fprintf(&b, `<div class="Pagination-nextPage"><a href="/search?%s">Next</a></div>
`, html.EscapeString(next.Encode()))
	}

	b.WriteString("</body></html>")
	fmt.Fprint(w, b.String())
}

func writeItem(b *strings.Builder, item Item) {
	fmt.Fprintf(b, `<div class="PagePromo" data-gtm-region="%s">`+"\n", html.EscapeString(item.Title))
	if !item.NoLink {
		fmt.Fprintf(b, `  <a class="Link" href="/article/%s">%s</a>`+"\n",
			html.EscapeString(item.Slug), html.EscapeString(item.Title))
	}
	if item.Description != "" {
		fmt.Fprintf(b, `  <div class="PagePromo-description">%s</div>`+"\n", html.EscapeString(item.Description))
	}
	if item.HasImage {
		fmt.Fprintf(b, `  <img class="Image" src="/img/%s.jpg">`+"\n", html.EscapeString(item.Slug))
	}
	if item.Live != "" {
		fmt.Fprintf(b, `  <span class="Timestamp-template-now">%s</span>`+"\n", html.EscapeString(item.Live))
	}
	if item.Absolute != "" {
		fmt.Fprintf(b, `  <span class="Timestamp-template">%s</span>`+"\n", html.EscapeString(item.Absolute))
	}
	b.WriteString("</div>\n")
}
