package adapter

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// datePattern catches loose inline dates ("Jan 24", "2024-06-01 18:00",
// "02/15/26") when a listing page carries no <time> element.
var datePattern = regexp.MustCompile(
	`(\d{4}-\d{2}-\d{2}[T ]?\d{0,2}:?\d{0,2})|` +
		`(?i)((Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(,?\s+\d{4})?(\s+\d{1,2}:\d{2}\s*(am|pm)?)?)|` +
		`(\d{1,2}/\d{1,2}/\d{2,4})`)

// htmlSource scrapes a community listing page. One badly marked-up item
// never drops the rest of the page.
type htmlSource struct {
	cfg    SourceConfig
	client *http.Client
}

func newHTMLSource(cfg SourceConfig, client *http.Client) *htmlSource {
	return &htmlSource{cfg: cfg, client: client}
}

func (s *htmlSource) Name() string {
	return s.cfg.Name
}

func (s *htmlSource) Kind() SourceKind {
	return KindScraped
}

func (s *htmlSource) Fetch(ctx context.Context) ([]CandidateEvent, error) {
	body, err := fetchURL(ctx, s.client, s.cfg.URL)
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}
	return s.parse(body)
}

func (s *htmlSource) parse(body []byte) ([]CandidateEvent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}

	base, _ := url.Parse(s.cfg.URL)
	ref := Ref{Source: s.cfg.Name, Adapter: "html", Kind: KindScraped}

	candidates := make([]CandidateEvent, 0)
	doc.Find(s.cfg.Selector).Each(func(i int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".title, h1, h2, h3").First().Text())
		if title == "" {
			// fall back to the first non-empty text line of the item
			for _, line := range strings.Split(sel.Text(), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					title = line
					break
				}
			}
		}
		if title == "" {
			slog.Warn("scraped item has no title, skipping", "source", s.cfg.Name, "index", i)
			return
		}

		rawDate := sel.Find("time").First().AttrOr("datetime", "")
		if rawDate == "" {
			rawDate = strings.TrimSpace(sel.Find("time").First().Text())
		}
		if rawDate == "" {
			rawDate = datePattern.FindString(sel.Text())
		}

		link := sel.Find("a[href]").First().AttrOr("href", "")
		if link != "" && base != nil {
			if resolved, err := base.Parse(link); err == nil {
				link = resolved.String()
			}
		}

		candidates = append(candidates, CandidateEvent{
			Title:        title,
			RawDate:      rawDate,
			Location:     strings.TrimSpace(sel.Find(".location, .venue, address").First().Text()),
			URL:          link,
			GroupName:    s.cfg.Group,
			GroupWebsite: s.cfg.GroupWebsite,
			Source:       ref,
		})
	})

	return candidates, nil
}
