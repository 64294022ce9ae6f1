package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const (
	pythonDotOrgName    = "python_dot_org"
	pythonDotOrgBaseURL = "https://www.python.org"
	pythonDotOrgURL     = "https://www.python.org/jobs/feed/rss/"
)

// PythonDotOrg reads the python.org jobs RSS feed. The feed itself only
// carries title, link and description; the posting date and the job-type
// tags live on each listing's detail page, so every new item costs one
// extra fetch. The board never publishes salaries.
type PythonDotOrg struct {
	d  Deps
	hc *httpclient.Client
}

func NewPythonDotOrg(d Deps) *PythonDotOrg {
	return &PythonDotOrg{d: d, hc: httpclient.New(httpclient.Options{Timeout: d.Cfg.DefaultHTTPTimeout})}
}

func (s *PythonDotOrg) Name() string        { return pythonDotOrgName }
func (s *PythonDotOrg) DisplayName() string { return "Python.org" }
func (s *PythonDotOrg) BaseURL() string     { return pythonDotOrgBaseURL }

type pythonItem struct {
	Raw         string `xml:",innerxml"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
}

type pythonFeed struct {
	Channel struct {
		Items []pythonItem `xml:"item"`
	} `xml:"channel"`
}

func (s *PythonDotOrg) Fetch(ctx domain.Context, cutoff time.Time) ([]domain.Listing, []domain.RawPayload, error) {
	body, err := s.hc.Get(ctx, pythonDotOrgURL)
	if err != nil {
		return nil, nil, fmt.Errorf("op=pythondotorg.feed: %w", err)
	}
	var feed pythonFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, nil, fmt.Errorf("op=pythondotorg.feed: %w: %v", domain.ErrSchemaMismatch, err)
	}

	// The feed has no dates, so the gate only runs after the detail fetch.
	items := feed.Channel.Items
	metas := make([]itemMeta, len(items))
	for i, item := range items {
		metas[i] = itemMeta{Link: strings.TrimSpace(item.Link)}
	}
	keep, err := sift(ctx, s.d.Links, cutoff, pythonDotOrgName, metas)
	if err != nil {
		return nil, nil, err
	}

	listings := make([]domain.Listing, 0, len(keep))
	payloads := make([]domain.RawPayload, 0, len(keep))
	for _, idx := range keep {
		item := items[idx]
		link := metas[idx].Link

		detail, err := s.detailPage(ctx, link)
		if err != nil {
			continue
		}
		if staleAfterParse(pythonDotOrgName, link, detail.postedOn, cutoff) {
			continue
		}

		// The first description line is the location; "Remote" or
		// "Anywhere" there means the role is remote.
		location, _, _ := strings.Cut(item.Description, "\n")
		location = strings.TrimSpace(location)

		listings = append(listings, domain.Listing{
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			Link:        link,
			PostedOn:    detail.postedOn,
			IsActive:    true,
			IsRemote:    pythonRemoteLocation(location),
			Locations:   ResolveLocations(s.d.Resolver, strings.Split(location, ",")),
			Tags:        NormalizeTags(s.d.Resolver, append([]string{"python"}, detail.tags...)),
		})
		payloads = append(payloads, domain.RawPayload{
			Link:      link,
			Payload:   "<item>" + item.Raw + "</item>",
			ExtraInfo: &detail.content,
		})
	}
	return listings, payloads, nil
}

type pythonDetail struct {
	content  string
	postedOn time.Time
	tags     []string
}

// detailPage fetches a listing page for its posting date and job-type tags.
// Listings are dropped when their page is unreachable: without the page
// there is no date, and an undated listing would never age out of the feed.
func (s *PythonDotOrg) detailPage(ctx domain.Context, link string) (*pythonDetail, error) {
	body, err := s.hc.Get(ctx, link)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			slog.Info("listing page is gone, dropping", slog.String("link", link))
		} else {
			slog.Warn("listing page fetch failed, dropping",
				slog.String("link", link), slog.Any("error", err))
		}
		observability.ListingsDroppedTotal.WithLabelValues(pythonDotOrgName, "gone").Inc()
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("op=pythondotorg.detail link=%s: %w", link, err)
	}

	detail := &pythonDetail{content: string(body)}
	if sel := doc.Find("time[datetime]"); sel.Length() == 1 {
		detail.postedOn = isoDate(sel.AttrOr("datetime", ""))
	}
	if sel := doc.Find(".job-tags > .listing-job-type"); sel.Length() == 1 {
		detail.tags = strings.Split(strings.TrimSpace(sel.Text()), ", ")
	}
	return detail, nil
}

func pythonRemoteLocation(location string) bool {
	switch strings.ToLower(location) {
	case "remote", "worldwide", "anywhere", "global":
		return true
	}
	return false
}

func isoDate(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
