package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/scrapfly"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const (
	wellfoundName    = "wellfound"
	wellfoundBaseURL = "https://wellfound.com"
	wellfoundGraphQL = "https://wellfound.com/graphql"

	wellfoundOperation   = "JobSearchResultsX"
	wellfoundOperationID = "tfe/2aeb9d7cc572a94adfe2b888b32e64eb8b7fb77215b168ba4256b08f9a94f37b"
)

// Wellfound posts the job-search GraphQL query through the anti-bot gateway.
// The first page reveals pageCount; the rest is fetched in concurrent
// batches. Search results arrive grouped by startup, with the listings
// nested under each company node.
type Wellfound struct {
	d Deps
}

func NewWellfound(d Deps) *Wellfound { return &Wellfound{d: d} }

func (s *Wellfound) Name() string        { return wellfoundName }
func (s *Wellfound) DisplayName() string { return "Wellfound" }
func (s *Wellfound) BaseURL() string     { return wellfoundBaseURL }

// flexID tolerates GraphQL ids arriving as either strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	*f = flexID(strings.Trim(string(b), `"`))
	return nil
}

type wellfoundResults struct {
	Data struct {
		Talent struct {
			JobSearchResults struct {
				PageCount int `json:"pageCount"`
				Startups  struct {
					Edges []struct {
						Node json.RawMessage `json:"node"`
					} `json:"edges"`
				} `json:"startups"`
			} `json:"jobSearchResults"`
		} `json:"talent"`
	} `json:"data"`
}

type wellfoundNode struct {
	Typename         string            `json:"__typename"`
	FeaturedStartups []json.RawMessage `json:"featuredStartups"`
}

type wellfoundCompany struct {
	Typename               string            `json:"__typename"`
	Name                   string            `json:"name"`
	PromotedStartup        json.RawMessage   `json:"promotedStartup"`
	HighlightedJobListings []json.RawMessage `json:"highlightedJobListings"`
}

type wellfoundJob struct {
	ID           flexID `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Remote       bool   `json:"remote"`
	Compensation string `json:"compensation"`
	LiveStartAt  int64  `json:"liveStartAt"`
}

type wellfoundItem struct {
	job     wellfoundJob
	raw     json.RawMessage
	company string
}

func (s *Wellfound) Fetch(ctx domain.Context, cutoff time.Time) ([]domain.Listing, []domain.RawPayload, error) {
	first, err := s.fetchPage(ctx, 1)
	if err != nil {
		return nil, nil, err
	}
	pageCount := first.Data.Talent.JobSearchResults.PageCount
	slog.Info("wellfound page count", slog.Int("pages", pageCount))

	pages := []*wellfoundResults{first}
	if pageCount > 1 {
		rest, err := fetchPages(ctx, pageCount-1, s.d.Cfg.WellfoundBatchSize,
			func(ctx domain.Context, page int) (*wellfoundResults, error) {
				return s.fetchPage(ctx, page+2)
			}, nil)
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, rest...)
	}

	var items []wellfoundItem
	for _, page := range pages {
		pageItems, err := flattenWellfoundPage(page)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, pageItems...)
	}

	metas := make([]itemMeta, len(items))
	for i, item := range items {
		metas[i] = itemMeta{Link: wellfoundLink(item.job), PostedOn: unixOrZero(item.job.LiveStartAt)}
	}
	keep, err := sift(ctx, s.d.Links, cutoff, wellfoundName, metas)
	if err != nil {
		return nil, nil, err
	}

	listings := make([]domain.Listing, 0, len(keep))
	payloads := make([]domain.RawPayload, 0, len(keep))
	for _, idx := range keep {
		item := items[idx]
		if !item.job.Remote {
			slog.Debug("wellfound listing is not remote, skipping", slog.String("link", metas[idx].Link))
			continue
		}
		listing := domain.Listing{
			Title:       strings.TrimSpace(item.job.Title),
			Description: strings.TrimSpace(item.job.Description),
			Link:        metas[idx].Link,
			PostedOn:    metas[idx].PostedOn,
			IsActive:    true,
			IsRemote:    true,
			CompanyName: strings.TrimSpace(item.company),
		}

		// Compensation reads like "$100k – $150k • 0.5% – 1.0%".
		if minAmt, maxAmt, err := s.d.Salary.ExtractRange(item.job.Compensation); err != nil {
			slog.Info("salary not parseable, storing without",
				slog.String("portal", wellfoundName), slog.String("link", listing.Link), slog.Any("error", err))
		} else {
			listing.MinSalary, listing.MaxSalary = convertRange(ctx, s.d.Rates, minAmt, maxAmt, listing.PostedOn, wellfoundName)
		}

		listings = append(listings, listing)
		payloads = append(payloads, domain.RawPayload{Link: listing.Link, Payload: string(item.raw)})
	}
	return listings, payloads, nil
}

func (s *Wellfound) fetchPage(ctx domain.Context, page int) (*wellfoundResults, error) {
	body, err := json.Marshal(s.pageQuery(page))
	if err != nil {
		return nil, fmt.Errorf("op=wellfound.query page=%d: %w", page, err)
	}
	res, err := s.d.ScrapflyASP.Do(ctx, scrapfly.Request{
		URL:  wellfoundGraphQL,
		Body: body,
		Headers: map[string]string{
			"accept-language":         "en-GB,en;q=0.8",
			"content-type":            "application/json",
			"referer":                 "https://wellfound.com/jobs",
			"x-apollo-operation-name": wellfoundOperation,
			"x-apollo-signature":      s.d.Cfg.WellfoundApolloSignature,
			"x-requested-with":        "XMLHttpRequest",
		},
		Cookies: map[string]string{
			"datadome":   s.d.Cfg.WellfoundDatadomeCookie,
			"_wellfound": s.d.Cfg.WellfoundCookie,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("op=wellfound.page page=%d: %w", page, err)
	}

	var results wellfoundResults
	if err := json.Unmarshal([]byte(res.Content), &results); err != nil {
		return nil, fmt.Errorf("op=wellfound.page page=%d: %w: %v", page, domain.ErrSchemaMismatch, err)
	}
	return &results, nil
}

func (s *Wellfound) pageQuery(page int) map[string]any {
	return map[string]any{
		"operationName": wellfoundOperation,
		"variables": map[string]any{
			"filterConfigurationInput": map[string]any{
				"page": page,
				// Location tags for India and remote Asia.
				"remoteCompanyLocationTagIds": []string{"1647", "153509"},
				// Software engineering roles.
				"roleTagIds":       []string{"151647"},
				"equity":           map[string]any{"min": nil, "max": nil},
				"remotePreference": "REMOTE_OPEN",
				"salary":           map[string]any{"min": nil, "max": nil},
				"yearsExperience":  map[string]any{"min": nil, "max": nil},
				"sortBy":           "LAST_POSTED",
			},
		},
		"extensions": map[string]any{"operationId": wellfoundOperationID},
	}
}

func flattenWellfoundPage(page *wellfoundResults) ([]wellfoundItem, error) {
	var items []wellfoundItem
	for _, edge := range page.Data.Talent.JobSearchResults.Startups.Edges {
		var node wellfoundNode
		if err := json.Unmarshal(edge.Node, &node); err != nil {
			return nil, fmt.Errorf("%w: wellfound company node: %v", domain.ErrSchemaMismatch, err)
		}

		var companies []json.RawMessage
		switch node.Typename {
		case "FeaturedStartups":
			companies = node.FeaturedStartups
		case "PromotedResult", "StartupSearchResult":
			companies = []json.RawMessage{edge.Node}
		default:
			return nil, fmt.Errorf("%w: unknown wellfound node type %q", domain.ErrSchemaMismatch, node.Typename)
		}

		for _, rawCompany := range companies {
			var company wellfoundCompany
			if err := json.Unmarshal(rawCompany, &company); err != nil {
				return nil, fmt.Errorf("%w: wellfound company: %v", domain.ErrSchemaMismatch, err)
			}
			if company.Typename == "PromotedResult" {
				if err := json.Unmarshal(company.PromotedStartup, &company); err != nil {
					return nil, fmt.Errorf("%w: wellfound promoted company: %v", domain.ErrSchemaMismatch, err)
				}
			}

			for _, rawJob := range company.HighlightedJobListings {
				var job wellfoundJob
				if err := json.Unmarshal(rawJob, &job); err != nil {
					return nil, fmt.Errorf("%w: wellfound job listing: %v", domain.ErrSchemaMismatch, err)
				}
				items = append(items, wellfoundItem{job: job, raw: rawJob, company: company.Name})
			}
		}
	}
	return items, nil
}

func wellfoundLink(job wellfoundJob) string {
	return fmt.Sprintf("%s/jobs/%s-%s", wellfoundBaseURL, job.ID, job.Slug)
}
