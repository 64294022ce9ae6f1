package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/fairyhunter13/jobfeed/internal/adapter/source/refdata"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const (
	weWorkRemotelyName    = "weworkremotely"
	weWorkRemotelyBaseURL = "https://weworkremotely.com"
	weWorkRemotelyURL     = "https://weworkremotely.com/categories/remote-back-end-programming-jobs.rss"
)

var (
	// Figures like "60,000" or "60,000,000" near a salary mention.
	wwrSalaryRe = regexp.MustCompile(`\b\d{2,}(?:,\d{3})+\b`)
	// "posted 5 days ago", "posted 3 hours ago".
	wwrPostedRe = regexp.MustCompile(`(?i)\bposted\s+(\d+\s+(?:day|hour|minute)s?\s+ago)\b`)
)

// WeWorkRemotely reads the back-end category RSS feed through the gateway,
// then visits each new listing's detail page for the salary figure, the
// relative posting time, and the location requirements. A listing whose
// detail page is gone is kept with the feed data alone.
type WeWorkRemotely struct {
	d Deps
}

func NewWeWorkRemotely(d Deps) *WeWorkRemotely { return &WeWorkRemotely{d: d} }

func (s *WeWorkRemotely) Name() string        { return weWorkRemotelyName }
func (s *WeWorkRemotely) DisplayName() string { return "We Work Remotely" }
func (s *WeWorkRemotely) BaseURL() string     { return weWorkRemotelyBaseURL }

type wwrItem struct {
	Raw         string `xml:",innerxml"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Region      string `xml:"region"`
	PubDate     string `xml:"pubDate"`
}

type wwrFeed struct {
	Channel struct {
		Items []wwrItem `xml:"item"`
	} `xml:"channel"`
}

func (s *WeWorkRemotely) Fetch(ctx domain.Context, cutoff time.Time) ([]domain.Listing, []domain.RawPayload, error) {
	res, err := s.d.Scrapfly.Fetch(ctx, weWorkRemotelyURL)
	if err != nil {
		return nil, nil, fmt.Errorf("op=weworkremotely.feed: %w", err)
	}
	var feed wwrFeed
	if err := xml.Unmarshal([]byte(res.Content), &feed); err != nil {
		return nil, nil, fmt.Errorf("op=weworkremotely.feed: %w: %v", domain.ErrSchemaMismatch, err)
	}

	items := feed.Channel.Items
	metas := make([]itemMeta, len(items))
	for i, item := range items {
		metas[i] = itemMeta{Link: strings.TrimSpace(item.Link), PostedOn: rssDate(item.PubDate)}
	}
	keep, err := sift(ctx, s.d.Links, cutoff, weWorkRemotelyName, metas)
	if err != nil {
		return nil, nil, err
	}

	listings := make([]domain.Listing, 0, len(keep))
	payloads := make([]domain.RawPayload, 0, len(keep))
	for _, idx := range keep {
		item := items[idx]
		link := metas[idx].Link

		listing := domain.Listing{
			Title:       strings.TrimSpace(item.Title),
			Description: htmlText(item.Description),
			Link:        link,
			PostedOn:    metas[idx].PostedOn,
			IsActive:    true,
			IsRemote:    strings.Contains(strings.ToLower(item.Region), "anywhere"),
			Locations:   wwrRegions(s.d.Resolver, item.Region),
			CompanyName: companyFromTitle(item.Title),
		}

		var extraInfo *string
		detail, err := s.detailPage(ctx, link)
		if err == nil {
			extraInfo = &detail.content
			if !detail.postedOn.IsZero() {
				listing.PostedOn = detail.postedOn
			}
			if detail.salary != "" {
				if amt, err := s.d.Salary.ExtractAmount(detail.salary); err == nil {
					listing.MinSalary, listing.MaxSalary = convertRange(ctx, s.d.Rates, amt, amt, listing.PostedOn, weWorkRemotelyName)
				}
			}
			if len(detail.locations) > 0 {
				listing.Locations = dedupeStrings(append(listing.Locations, detail.locations...))
			}
		}
		if staleAfterParse(weWorkRemotelyName, link, listing.PostedOn, cutoff) {
			continue
		}

		listings = append(listings, listing)
		payloads = append(payloads, domain.RawPayload{
			Link:      link,
			Payload:   "<item>" + item.Raw + "</item>",
			ExtraInfo: extraInfo,
		})
	}
	return listings, payloads, nil
}

type wwrDetail struct {
	content   string
	salary    string
	postedOn  time.Time
	locations []string
}

func (s *WeWorkRemotely) detailPage(ctx domain.Context, link string) (*wwrDetail, error) {
	res, err := s.d.Scrapfly.Fetch(ctx, link)
	if err != nil {
		if errors.Is(err, domain.ErrListingGone) {
			slog.Info("listing page is gone, keeping feed data only", slog.String("link", link))
		} else {
			slog.Warn("listing page fetch failed, keeping feed data only",
				slog.String("link", link), slog.Any("error", err))
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Content))
	if err != nil {
		return nil, fmt.Errorf("op=weworkremotely.detail link=%s: %w", link, err)
	}

	detail := &wwrDetail{content: res.Content, locations: LocationsFromJSONLD(doc, s.d.Resolver)}
	detail.salary = findNearText(doc, "salary", wwrSalaryRe, 0)
	if posted := findNearText(doc, "posted", wwrPostedRe, 1); posted != "" {
		if t, err := ParseRelativeTime(posted, s.d.now()); err == nil {
			detail.postedOn = t
		}
	}
	return detail, nil
}

// findNearText scans elements whose direct text mentions marker and returns
// the given regexp group matched against the element's full text content.
func findNearText(doc *goquery.Document, marker string, re *regexp.Regexp, group int) string {
	var found string
	doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(ownText(sel)), marker) {
			return true
		}
		m := re.FindStringSubmatch(strings.ToLower(strings.TrimSpace(sel.Text())))
		if m == nil || m[group] == "" {
			return true
		}
		found = m[group]
		return false
	})
	return found
}

// ownText returns only the direct text of the selection's nodes, without
// descendant element text.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
	}
	return b.String()
}

// wwrRegions resolves feed region strings like "USA Only" or "UK/EU Only"
// to ISO codes, dropping unresolvable parts.
func wwrRegions(resolver *refdata.Resolver, region string) []string {
	parts := strings.FieldsFunc(region, func(r rune) bool { return r == '/' || r == ',' })
	var codes []string
	for _, part := range parts {
		if code, ok := resolver.CountryCode(part); ok {
			codes = append(codes, code)
		}
	}
	return dedupeStrings(codes)
}

// companyFromTitle splits the feed's "Company: Role" title format.
func companyFromTitle(title string) string {
	company, _, found := strings.Cut(title, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(company)
}

func rssDate(value string) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
