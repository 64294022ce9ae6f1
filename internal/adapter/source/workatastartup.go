package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const (
	workAtAStartupName    = "work_at_a_startup"
	workAtAStartupBaseURL = "https://www.workatastartup.com"
	workAtAStartupFetch   = "https://www.workatastartup.com/companies/fetch"

	waasAlgoliaURL   = "https://45bwzj1sgc-3.algolianet.com/1/indexes/*/queries"
	waasAlgoliaAppID = "45BWZJ1SGC"
	waasAlgoliaAgent = "Algolia for JavaScript (3.35.1); Browser (lite)"
	waasAlgoliaIndex = "WaaSPublicCompanyJob_created_at_desc_production"
	waasHitsPerPage  = 100
)

// WorkAtAStartup composes two requests: an Algolia search for recently
// active companies, then the authenticated companies/fetch call that returns
// those companies with their open jobs nested. Jobs carry no posting date,
// so the store assigns ingestion time.
type WorkAtAStartup struct {
	d  Deps
	hc *httpclient.Client
}

func NewWorkAtAStartup(d Deps) *WorkAtAStartup {
	return &WorkAtAStartup{d: d, hc: httpclient.New(httpclient.Options{Timeout: d.Cfg.DefaultHTTPTimeout})}
}

func (s *WorkAtAStartup) Name() string        { return workAtAStartupName }
func (s *WorkAtAStartup) DisplayName() string { return "Work at a Startup" }
func (s *WorkAtAStartup) BaseURL() string     { return workAtAStartupBaseURL }

type waasJob struct {
	ID                flexID `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Remote            string `json:"remote"`
	PrettySalaryRange string `json:"pretty_salary_range"`
	Skills            []struct {
		Name string `json:"name"`
	} `json:"skills"`
}

type waasItem struct {
	job     waasJob
	raw     json.RawMessage
	company map[string]any
}

func (s *WorkAtAStartup) Fetch(ctx domain.Context, cutoff time.Time) ([]domain.Listing, []domain.RawPayload, error) {
	companyIDs, err := s.searchCompanyIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(companyIDs) == 0 {
		return nil, nil, nil
	}
	slog.Info("work_at_a_startup companies found", slog.Int("count", len(companyIDs)))

	items, err := s.fetchCompanies(ctx, companyIDs)
	if err != nil {
		return nil, nil, err
	}

	metas := make([]itemMeta, len(items))
	for i, item := range items {
		metas[i] = itemMeta{Link: waasLink(item.job)}
	}
	keep, err := sift(ctx, s.d.Links, cutoff, workAtAStartupName, metas)
	if err != nil {
		return nil, nil, err
	}

	listings := make([]domain.Listing, 0, len(keep))
	payloads := make([]domain.RawPayload, 0, len(keep))
	for _, idx := range keep {
		item := items[idx]
		tags := make([]string, 0, len(item.job.Skills))
		for _, skill := range item.job.Skills {
			tags = append(tags, skill.Name)
		}
		companyName, _ := item.company["name"].(string)

		listing := domain.Listing{
			Title:       strings.TrimSpace(item.job.Title),
			Description: strings.TrimSpace(item.job.Description),
			Link:        metas[idx].Link,
			IsActive:    true,
			IsRemote:    true,
			CompanyName: strings.TrimSpace(companyName),
			Tags:        NormalizeTags(s.d.Resolver, tags),
		}

		if minAmt, maxAmt, err := s.d.Salary.ExtractRange(item.job.PrettySalaryRange); err != nil {
			slog.Info("salary not parseable, storing without",
				slog.String("portal", workAtAStartupName), slog.String("link", listing.Link), slog.Any("error", err))
		} else {
			listing.MinSalary, listing.MaxSalary = convertRange(ctx, s.d.Rates, minAmt, maxAmt, time.Time{}, workAtAStartupName)
		}

		listings = append(listings, listing)
		payloads = append(payloads, domain.RawPayload{
			Link:    listing.Link,
			Payload: jsonPayload(map[string]any{"job": item.raw, "company": item.company}),
		})
	}
	return listings, payloads, nil
}

func (s *WorkAtAStartup) searchCompanyIDs(ctx domain.Context) ([]int64, error) {
	params := url.Values{}
	params.Set("query", "")
	params.Set("hitsPerPage", fmt.Sprint(waasHitsPerPage))
	params.Set("page", "0")

	query := url.Values{}
	query.Set("x-algolia-agent", waasAlgoliaAgent)
	query.Set("x-algolia-application-id", waasAlgoliaAppID)
	query.Set("x-algolia-api-key", s.d.Cfg.WorkAtAStartupAlgoliaKey)

	body := map[string]any{
		"requests": []map[string]any{{
			"indexName": waasAlgoliaIndex,
			"params":    params.Encode(),
		}},
	}

	var out struct {
		Results []struct {
			Hits []struct {
				CompanyID int64 `json:"company_id"`
			} `json:"hits"`
		} `json:"results"`
	}
	if err := s.hc.PostJSON(ctx, waasAlgoliaURL+"?"+query.Encode(), nil, body, &out); err != nil {
		return nil, fmt.Errorf("op=work_at_a_startup.search: %w", err)
	}

	var ids []int64
	seen := make(map[int64]struct{})
	for _, result := range out.Results {
		for _, hit := range result.Hits {
			if _, dup := seen[hit.CompanyID]; dup || hit.CompanyID == 0 {
				continue
			}
			seen[hit.CompanyID] = struct{}{}
			ids = append(ids, hit.CompanyID)
		}
	}
	return ids, nil
}

func (s *WorkAtAStartup) fetchCompanies(ctx domain.Context, ids []int64) ([]waasItem, error) {
	header := http.Header{}
	header.Set("x-csrf-token", s.d.Cfg.WorkAtAStartupCSRFToken)
	header.Set("Cookie", "_bf_session_key="+s.d.Cfg.WorkAtAStartupCookie)

	var out struct {
		Companies []json.RawMessage `json:"companies"`
	}
	if err := s.hc.PostJSON(ctx, workAtAStartupFetch, header, map[string]any{"ids": ids}, &out); err != nil {
		return nil, fmt.Errorf("op=work_at_a_startup.companies: %w", err)
	}
	return flattenCompanies(out.Companies)
}

// flattenCompanies unnests each company's remote jobs into standalone items.
func flattenCompanies(companies []json.RawMessage) ([]waasItem, error) {
	var items []waasItem
	for _, rawCompany := range companies {
		var company struct {
			Jobs []json.RawMessage `json:"jobs"`
		}
		if err := json.Unmarshal(rawCompany, &company); err != nil {
			return nil, fmt.Errorf("%w: work_at_a_startup company: %v", domain.ErrSchemaMismatch, err)
		}

		// The payload keeps the company as context for each job, minus the
		// jobs list itself to avoid nesting every sibling listing.
		var companyFields map[string]any
		if err := json.Unmarshal(rawCompany, &companyFields); err != nil {
			return nil, fmt.Errorf("%w: work_at_a_startup company: %v", domain.ErrSchemaMismatch, err)
		}
		delete(companyFields, "jobs")

		for _, rawJob := range company.Jobs {
			var job waasJob
			if err := json.Unmarshal(rawJob, &job); err != nil {
				return nil, fmt.Errorf("%w: work_at_a_startup job: %v", domain.ErrSchemaMismatch, err)
			}
			if job.Remote != "yes" && job.Remote != "only" {
				slog.Debug("work_at_a_startup listing is not remote, skipping", slog.String("link", waasLink(job)))
				continue
			}
			items = append(items, waasItem{job: job, raw: rawJob, company: companyFields})
		}
	}
	return items, nil
}

func waasLink(job waasJob) string {
	return fmt.Sprintf("%s/jobs/%s", workAtAStartupBaseURL, job.ID)
}
