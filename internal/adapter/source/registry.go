package source

import (
	"net/http"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/adapter/scrapfly"
	"github.com/fairyhunter13/jobfeed/internal/adapter/source/refdata"
	"github.com/fairyhunter13/jobfeed/internal/config"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// Deps bundles what every adapter shares: config, reference data, the FX
// provider, the already-stored link check, and the gateway clients.
type Deps struct {
	Cfg      config.Config
	Resolver *refdata.Resolver
	Salary   *SalaryParser
	Rates    domain.RateProvider
	Links    domain.LinkChecker

	// Scrapfly carries plain gateway fetches (RSS feeds, detail pages);
	// ScrapflyASP is the anti-bot rendering pipeline with its long timeout.
	Scrapfly    *scrapfly.Client
	ScrapflyASP *scrapfly.Client

	Now func() time.Time
}

// NewDeps wires the shared adapter dependencies from config.
func NewDeps(cfg config.Config, resolver *refdata.Resolver, rates domain.RateProvider, links domain.LinkChecker) Deps {
	return Deps{
		Cfg:      cfg,
		Resolver: resolver,
		Salary:   NewSalaryParser(resolver, cfg.DefaultCurrency),
		Rates:    rates,
		Links:    links,
		Scrapfly: scrapfly.New(cfg.ScrapflyAPIKey, cfg.ScrapflyBaseURL, cfg.DefaultHTTPTimeout, false, httpclient.Policy{}),
		ScrapflyASP: scrapfly.New(cfg.ScrapflyAPIKey, cfg.ScrapflyBaseURL, cfg.ScrapflyRequestTimeout, true, httpclient.Policy{
			// Anti-bot denials are worth retrying through the rendering
			// pipeline; a fresh session often gets through.
			ExtraStatusCodes: []int{http.StatusForbidden, http.StatusUnprocessableEntity},
		}),
		Now: func() time.Time { return time.Now().UTC() },
	}
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// BuildAll constructs every adapter, keyed by source name.
func BuildAll(d Deps) map[string]domain.Source {
	all := []domain.Source{
		NewRemotive(d),
		NewHimalayas(d),
		NewWellfound(d),
		NewWeWorkRemotely(d),
		NewWorkAtAStartup(d),
		NewPythonDotOrg(d),
	}
	byName := make(map[string]domain.Source, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}
	return byName
}

// Names lists every registered source name, sorted.
func Names() []string {
	return []string{
		himalayasName,
		pythonDotOrgName,
		remotiveName,
		wellfoundName,
		weWorkRemotelyName,
		workAtAStartupName,
	}
}

// BaseURLs maps each source's display name to its base URL, used to
// attribute stored links back to their portal.
func BaseURLs(sources map[string]domain.Source) map[string]string {
	m := make(map[string]string, len(sources))
	for _, s := range sources {
		m[s.DisplayName()] = s.BaseURL()
	}
	return m
}
