// Package apis declares the response shapes and politeness conventions of the
// upstream APIs served by the fetcher. A Preset carries no endpoint
// knowledge: callers still supply paths and query parameters.
package apis

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/biofetch/pkg/client"
	"github.com/Sternrassler/biofetch/pkg/pagination"
)

// ErrUnknownAPI is returned by Lookup for unregistered names.
var ErrUnknownAPI = errors.New("unknown api")

// Preset describes one upstream API.
type Preset struct {
	Name        string
	Description string
	BaseURL     string

	// Shape is the pagination shape of the API's list endpoints.
	Shape  pagination.Shape
	Format client.Format

	// NotFoundIsEmpty marks APIs that answer "no matches" with a 404.
	NotFoundIsEmpty bool

	// Request throttle. KeyedMinInterval applies instead of MinInterval when
	// an API key is configured.
	MinInterval       time.Duration
	KeyedMinInterval  time.Duration
	RequestsPerSecond float64

	// PageDelay overrides the default politeness delay when non-zero.
	PageDelay time.Duration

	Retry client.RetryConfig

	// Credentials are sent either as KeyHeader or as the KeyParam query
	// parameter. KeyEnv names the environment variable holding the key.
	KeyHeader string
	KeyParam  string
	KeyEnv    string
}

// openFDARetry retries 429 and 5xx three times with a 1.5x growing back-off.
func openFDARetry() client.RetryConfig {
	return client.RetryConfig{
		RetryOn:    []client.ErrorClass{client.ErrorClassRateLimit, client.ErrorClassServer},
		MaxRetries: 3,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
		Multiplier: 1.5,
	}
}

var presets = map[string]Preset{
	"clinicaltrials": {
		Name:        "clinicaltrials",
		Description: "ClinicalTrials.gov API v2",
		BaseURL:     "https://clinicaltrials.gov/api/v2",
		Shape:       pagination.Token("studies", "nextPageToken", "pageToken"),
		Retry:       client.DefaultRetryConfig(),
	},
	"naaccr": {
		Name:        "naaccr",
		Description: "NAACCR Data Dictionary API 1.0",
		BaseURL:     "https://apps.naaccr.org/data-dictionary/api/1.0",
		Shape:       pagination.CursorURL("results", "next"),
		PageDelay:   250 * time.Millisecond,
		Retry:       client.DefaultRetryConfig(),
	},
	"ncbi": {
		Name:             "ncbi",
		Description:      "NCBI E-utilities",
		BaseURL:          "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		Shape:            pagination.Offset("esearchresult.idlist", "esearchresult.count", "retstart"),
		MinInterval:      400 * time.Millisecond,
		KeyedMinInterval: 120 * time.Millisecond,
		Retry:            client.DefaultRetryConfig(),
		KeyParam:         "api_key",
		KeyEnv:           "NCBI_API_KEY",
	},
	"openfda": {
		Name:            "openfda",
		Description:     "openFDA",
		BaseURL:         "https://api.fda.gov",
		Shape:           pagination.Offset("results", "meta.results.total", "skip"),
		NotFoundIsEmpty: true,
		Retry:           openFDARetry(),
		KeyHeader:       "X-Api-Key",
		KeyEnv:          "OPENFDA_API_KEY",
	},
	"pubchem": {
		Name:              "pubchem",
		Description:       "PubChem PUG REST",
		BaseURL:           "https://pubchem.ncbi.nlm.nih.gov/rest/pug",
		Shape:             pagination.Shape{Style: pagination.StyleNone},
		RequestsPerSecond: 5,
		Retry: client.RetryConfig{
			RetryOn:    []client.ErrorClass{client.ErrorClassRateLimit, client.ErrorClassServer},
			MaxRetries: 3,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 8 * time.Second,
			Multiplier: 2,
		},
	},
	"seer": {
		Name:        "seer",
		Description: "SEER API",
		BaseURL:     "https://api.seer.cancer.gov",
		Shape:       pagination.Offset("results", "total", "offset"),
		Retry:       client.DefaultRetryConfig(),
		KeyHeader:   "X-SEERAPI-Key",
		KeyEnv:      "SEER_API_KEY",
	},
	"uspto": {
		Name:        "uspto",
		Description: "USPTO Open Data Portal",
		BaseURL:     "https://api.uspto.gov",
		Shape:       pagination.Offset("patentFileWrapperDataBag", "count", "offset"),
		Retry:       client.DefaultRetryConfig(),
		KeyHeader:   "x-api-key",
		KeyEnv:      "USPTO_API_KEY",
	},
}

// Lookup returns the preset registered under name (case-insensitive).
func Lookup(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownAPI, name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names returns the registered preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every preset, sorted by name.
func All() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, name := range Names() {
		out = append(out, presets[name])
	}
	return out
}

// KeyFromEnv reads the API key from the preset's environment variable.
func (p Preset) KeyFromEnv() string {
	if p.KeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(p.KeyEnv))
}

// Apply configures cfg for the API. Header credentials are installed on
// cfg.Header; query-parameter credentials are added by Request.
func (p Preset) Apply(cfg *client.Config, apiKey string) {
	cfg.BaseURL = p.BaseURL
	cfg.Retry = p.Retry
	cfg.Retry.RetryOn = append([]client.ErrorClass(nil), p.Retry.RetryOn...)

	cfg.MinInterval = p.MinInterval
	if apiKey != "" && p.KeyedMinInterval > 0 {
		cfg.MinInterval = p.KeyedMinInterval
	}
	cfg.RequestsPerSecond = p.RequestsPerSecond

	if p.PageDelay > 0 {
		cfg.PageDelay = p.PageDelay
	}

	if apiKey != "" && p.KeyHeader != "" {
		if cfg.Header == nil {
			cfg.Header = make(http.Header)
		} else {
			cfg.Header = cfg.Header.Clone()
		}
		cfg.Header.Set(p.KeyHeader, apiKey)
	}
}

// Request builds a request for path relative to the preset base URL, carrying
// the preset's shape, format and 404 policy.
func (p Preset) Request(path string, params url.Values, apiKey string) client.Request {
	req := client.Get(path, nil).WithParams(params).WithShape(p.Shape)
	req.Format = p.Format
	req.NotFoundIsEmpty = p.NotFoundIsEmpty

	if apiKey != "" && p.KeyParam != "" {
		q := req.Params
		if q == nil {
			q = url.Values{}
		}
		q.Set(p.KeyParam, apiKey)
		req.Params = q
	}
	return req
}

// NewClient creates a client configured for the preset. The API key falls
// back to KeyFromEnv when empty.
func (p Preset) NewClient(base client.Config, apiKey string) (*client.Client, error) {
	if apiKey == "" {
		apiKey = p.KeyFromEnv()
	}
	cfg := base
	p.Apply(&cfg, apiKey)
	return client.New(cfg)
}
