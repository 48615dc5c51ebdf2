package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

// HTTPJSON talks to a provider gateway that fronts one or more sources
// behind a common JSON search endpoint:
//
//	GET {base}/v1/sources/{source}/search?q=&category=&destination=&lat=&lng=&radius=&limit=
//	{"results": [{"id": "...", "name": "...", "rating": 4.5, ...}]}
//
// A 404 means the source knows nothing for the query and yields no candidates.
type HTTPJSON struct {
	source  string
	baseURL string
	apiKey  string
	cost    float64
	client  *http.Client
}

// NewHTTPJSON returns an adapter for one gateway-backed source. client
// may be nil, in which case http.DefaultClient is used; timeouts come from
// the caller's context.
func NewHTTPJSON(source, baseURL, apiKey string, costPerCall float64, client *http.Client) *HTTPJSON {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPJSON{
		source:  source,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		cost:    costPerCall,
		client:  client,
	}
}

func (h *HTTPJSON) Name() string         { return h.source }
func (h *HTTPJSON) CostPerCall() float64 { return h.cost }

type gatewayResponse struct {
	Results []json.RawMessage `json:"results"`
}

type gatewayPlace struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	Country     string   `json:"country"`
	Phone       string   `json:"phone"`
	Website     string   `json:"website"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int64   `json:"review_count"`
	PriceLevel  *int     `json:"price_level"`
	Ranking     *int     `json:"ranking"`
}

func (h *HTTPJSON) FetchCandidates(ctx context.Context, q Query) ([]models.Candidate, error) {
	const op = "sources.HTTPJSON.FetchCandidates"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.searchURL(q), nil)
	if err != nil {
		return nil, errs.NewValidation(op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.NewExternal(op, h.source, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errs.NewExternal(op, h.source, "read body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.NewExternal(op, h.source, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var gr gatewayResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, errs.NewExternal(op, h.source, "decode response", err)
	}

	out := make([]models.Candidate, 0, len(gr.Results))
	for _, raw := range gr.Results {
		var p gatewayPlace
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errs.NewExternal(op, h.source, "decode result", err)
		}
		c := models.Candidate{
			Source:      h.source,
			ExternalID:  p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Address:     p.Address,
			City:        p.City,
			Country:     p.Country,
			Phone:       p.Phone,
			Website:     p.Website,
			Lat:         p.Lat,
			Lng:         p.Lng,
			Rating:      p.Rating,
			ReviewCount: p.ReviewCount,
			PriceLevel:  p.PriceLevel,
			Ranking:     p.Ranking,
			Raw:         []byte(raw),
		}
		if c.Category == "" {
			c.Category = q.Category
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (h *HTTPJSON) searchURL(q Query) string {
	v := url.Values{}
	if q.Name != "" {
		v.Set("q", q.Name)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Destination != "" {
		v.Set("destination", q.Destination)
	}
	if q.HasLocation() {
		v.Set("lat", strconv.FormatFloat(*q.Lat, 'f', 6, 64))
		v.Set("lng", strconv.FormatFloat(*q.Lng, 'f', 6, 64))
	}
	if q.RadiusMeters > 0 {
		v.Set("radius", strconv.FormatFloat(q.RadiusMeters, 'f', 0, 64))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return fmt.Sprintf("%s/v1/sources/%s/search?%s", h.baseURL, url.PathEscape(h.source), v.Encode())
}
