package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// Docs: https://github.com/remotive-com/remote-jobs-api
const (
	remotiveName    = "remotive"
	remotiveBaseURL = "https://remotive.com"
	remotiveURL     = "https://remotive.com/api/remote-jobs?category=software-dev&limit=500"

	remotiveDateLayout = "2006-01-02T15:04:05"
)

// Remotive fetches the software-dev category of the Remotive API in one
// request.
type Remotive struct {
	d  Deps
	hc *httpclient.Client
}

func NewRemotive(d Deps) *Remotive {
	return &Remotive{d: d, hc: httpclient.New(httpclient.Options{Timeout: d.Cfg.DefaultHTTPTimeout})}
}

func (s *Remotive) Name() string        { return remotiveName }
func (s *Remotive) DisplayName() string { return "Remotive" }
func (s *Remotive) BaseURL() string     { return remotiveBaseURL }

type remotiveJob struct {
	URL                       string   `json:"url"`
	Title                     string   `json:"title"`
	Description               string   `json:"description"`
	CompanyName               string   `json:"company_name"`
	PublicationDate           string   `json:"publication_date"`
	Salary                    string   `json:"salary"`
	Tags                      []string `json:"tags"`
	CandidateRequiredLocation string   `json:"candidate_required_location"`
}

func (s *Remotive) Fetch(ctx domain.Context, cutoff time.Time) ([]domain.Listing, []domain.RawPayload, error) {
	var body struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := s.hc.GetJSON(ctx, remotiveURL, &body); err != nil {
		return nil, nil, fmt.Errorf("op=remotive.fetch: %w", err)
	}

	items := make([]remotiveJob, 0, len(body.Jobs))
	raws := make([]json.RawMessage, 0, len(body.Jobs))
	metas := make([]itemMeta, 0, len(body.Jobs))
	for _, raw := range body.Jobs {
		var item remotiveJob
		if err := json.Unmarshal(raw, &item); err != nil {
			slog.Warn("remotive item decode failed", slog.Any("error", err))
			continue
		}
		items = append(items, item)
		raws = append(raws, raw)
		metas = append(metas, itemMeta{Link: item.URL, PostedOn: s.postedOn(item)})
	}

	keep, err := sift(ctx, s.d.Links, cutoff, remotiveName, metas)
	if err != nil {
		return nil, nil, err
	}

	listings := make([]domain.Listing, 0, len(keep))
	payloads := make([]domain.RawPayload, 0, len(keep))
	for _, idx := range keep {
		item := items[idx]
		listing := domain.Listing{
			Title:       strings.TrimSpace(item.Title),
			Description: htmlText(item.Description),
			Link:        item.URL,
			PostedOn:    metas[idx].PostedOn,
			IsActive:    true,
			IsRemote:    strings.EqualFold(strings.TrimSpace(item.CandidateRequiredLocation), "Worldwide"),
			Locations:   ResolveLocations(s.d.Resolver, strings.Split(item.CandidateRequiredLocation, ",")),
			CompanyName: strings.TrimSpace(item.CompanyName),
			Tags:        NormalizeTags(s.d.Resolver, item.Tags),
		}

		if minAmt, maxAmt, err := s.d.Salary.ExtractRange(item.Salary); err != nil {
			slog.Info("salary not parseable, storing without",
				slog.String("portal", remotiveName), slog.String("link", item.URL), slog.Any("error", err))
		} else {
			listing.MinSalary, listing.MaxSalary = convertRange(ctx, s.d.Rates, minAmt, maxAmt, listing.PostedOn, remotiveName)
		}

		listings = append(listings, listing)
		payloads = append(payloads, domain.RawPayload{Link: item.URL, Payload: string(raws[idx])})
	}
	return listings, payloads, nil
}

func (s *Remotive) postedOn(item remotiveJob) time.Time {
	t, err := time.Parse(remotiveDateLayout, item.PublicationDate)
	if err != nil {
		slog.Warn("remotive publication date not parseable",
			slog.String("link", item.URL), slog.String("value", item.PublicationDate))
		return time.Time{}
	}
	return t.UTC()
}
