package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// Docs: https://himalayas.app/api
const (
	himalayasName    = "himalayas"
	himalayasBaseURL = "https://himalayas.app"
	himalayasURL     = "https://himalayas.app/jobs/api"

	himalayasPageLimit = 20
)

// Himalayas pages through the offset/limit API. The first page reveals
// totalCount; the rest is fetched in concurrent batches with an early exit
// once a whole batch predates the cutoff.
type Himalayas struct {
	d  Deps
	hc *httpclient.Client
}

func NewHimalayas(d Deps) *Himalayas {
	return &Himalayas{d: d, hc: httpclient.New(httpclient.Options{Timeout: d.Cfg.DefaultHTTPTimeout})}
}

func (s *Himalayas) Name() string        { return himalayasName }
func (s *Himalayas) DisplayName() string { return "Himalayas" }
func (s *Himalayas) BaseURL() string     { return himalayasBaseURL }

type himalayasJob struct {
	GUID                 string   `json:"guid"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	CompanyName          string   `json:"companyName"`
	PubDate              int64    `json:"pubDate"`
	Categories           []string `json:"categories"`
	ParentCategories     []string `json:"parentCategories"`
	LocationRestrictions []string `json:"locationRestrictions"`
	MinSalary            *float64 `json:"minSalary"`
	MaxSalary            *float64 `json:"maxSalary"`
}

type himalayasPage struct {
	jobs []himalayasJob
	raws []json.RawMessage
}

func (s *Himalayas) Fetch(ctx domain.Context, cutoff time.Time) ([]domain.Listing, []domain.RawPayload, error) {
	first, total, err := s.fetchPage(ctx, 0)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("himalayas listing count", slog.Int("total", total))

	pages := []himalayasPage{first}
	if total > himalayasPageLimit && !pageIsOld(first, cutoff) {
		extra := (total+himalayasPageLimit-1)/himalayasPageLimit - 1
		rest, err := fetchPages(ctx, extra, s.d.Cfg.HimalayasBatchSize,
			func(ctx domain.Context, page int) (himalayasPage, error) {
				p, _, err := s.fetchPage(ctx, (page+1)*himalayasPageLimit)
				return p, err
			},
			func(batch []himalayasPage) bool {
				for _, p := range batch {
					if !pageIsOld(p, cutoff) {
						return false
					}
				}
				return true
			})
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, rest...)
	}

	var metas []itemMeta
	var jobs []himalayasJob
	var raws []json.RawMessage
	for _, p := range pages {
		for i, job := range p.jobs {
			jobs = append(jobs, job)
			raws = append(raws, p.raws[i])
			metas = append(metas, itemMeta{Link: job.GUID, PostedOn: unixOrZero(job.PubDate)})
		}
	}

	keep, err := sift(ctx, s.d.Links, cutoff, himalayasName, metas)
	if err != nil {
		return nil, nil, err
	}

	listings := make([]domain.Listing, 0, len(keep))
	payloads := make([]domain.RawPayload, 0, len(keep))
	for _, idx := range keep {
		job := jobs[idx]
		listing := domain.Listing{
			Title:       strings.TrimSpace(job.Title),
			Description: htmlText(job.Description),
			Link:        job.GUID,
			PostedOn:    metas[idx].PostedOn,
			IsActive:    true,
			IsRemote:    len(job.LocationRestrictions) == 0,
			Locations:   ResolveLocations(s.d.Resolver, job.LocationRestrictions),
			CompanyName: strings.TrimSpace(job.CompanyName),
			Tags:        NormalizeTags(s.d.Resolver, himalayasTags(job)),
			MinSalary:   salaryFromFloat(job.MinSalary),
			MaxSalary:   salaryFromFloat(job.MaxSalary),
		}
		listings = append(listings, listing)
		payloads = append(payloads, domain.RawPayload{Link: job.GUID, Payload: string(raws[idx])})
	}
	return listings, payloads, nil
}

func (s *Himalayas) fetchPage(ctx domain.Context, offset int) (himalayasPage, int, error) {
	var body struct {
		TotalCount int               `json:"totalCount"`
		Jobs       []json.RawMessage `json:"jobs"`
	}
	url := fmt.Sprintf("%s?offset=%d&limit=%d", himalayasURL, offset, himalayasPageLimit)
	if err := s.hc.GetJSON(ctx, url, &body); err != nil {
		return himalayasPage{}, 0, fmt.Errorf("op=himalayas.page offset=%d: %w", offset, err)
	}

	page := himalayasPage{
		jobs: make([]himalayasJob, 0, len(body.Jobs)),
		raws: make([]json.RawMessage, 0, len(body.Jobs)),
	}
	for _, raw := range body.Jobs {
		var job himalayasJob
		if err := json.Unmarshal(raw, &job); err != nil {
			slog.Warn("himalayas item decode failed", slog.Int("offset", offset), slog.Any("error", err))
			continue
		}
		page.jobs = append(page.jobs, job)
		page.raws = append(page.raws, raw)
	}
	return page, body.TotalCount, nil
}

// himalayasTags splits hyphenated categories ("Django-Python-Developer")
// into individual tags and appends the parent categories.
func himalayasTags(job himalayasJob) []string {
	var tags []string
	for _, category := range job.Categories {
		tags = append(tags, strings.Split(category, "-")...)
	}
	return append(tags, job.ParentCategories...)
}

func pageIsOld(p himalayasPage, cutoff time.Time) bool {
	for _, job := range p.jobs {
		posted := unixOrZero(job.PubDate)
		if posted.IsZero() || !posted.Before(cutoff) {
			return false
		}
	}
	return true
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func salaryFromFloat(v *float64) *decimal.Decimal {
	if v == nil || *v < 0 {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(2)
	return &d
}
