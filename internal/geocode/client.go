// Package geocode resolves postal addresses against a Nominatim-compatible
// HTTP API. Every outbound call goes through a Queue so the process never
// exceeds one request per interval.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldvisit/internal/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrNoMatch 非 2xx 或空结果：视为“无数据”，调用方保留字段为空
var ErrNoMatch = errors.New("geocode: no data")

// Query 地址查询条件
type Query struct {
	Street     string
	City       string
	Region     string
	PostalCode string
}

// Result 匹配到的地址（缺失字段为空字符串）
type Result struct {
	Street       string
	Neighborhood string
	City         string
	Region       string
	PostalCode   string
	Latitude     *float64
	Longitude    *float64
}

type nominatimAddress struct {
	Road          string `json:"road"`
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	Quarter       string `json:"quarter"`
	CityDistrict  string `json:"city_district"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	Municipality  string `json:"municipality"`
	State         string `json:"state"`
	Postcode      string `json:"postcode"`
}

type nominatimPlace struct {
	Lat     string           `json:"lat"`
	Lon     string           `json:"lon"`
	Address nominatimAddress `json:"address"`
}

// Options 客户端配置
type Options struct {
	BaseURL   string
	UserAgent string
	Country   string
	Timeout   time.Duration
}

// Client 地理编码客户端
type Client struct {
	httpClient *resty.Client
	queue      *Queue
	country    string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewClient(opts Options, queue *Queue, m *metrics.Metrics, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		httpClient: httpClient,
		queue:      queue,
		country:    opts.Country,
		metrics:    m,
		logger:     logger,
	}
}

// Geocode tries street/city/state first, then the postal code. When the match
// has no street and carries coordinates, a reverse lookup fills the gaps.
func (c *Client) Geocode(ctx context.Context, q Query) (*Result, error) {
	var place *nominatimPlace
	var err error

	if strings.TrimSpace(q.Street) != "" || strings.TrimSpace(q.City) != "" {
		place, err = c.search(ctx, map[string]string{
			"street": q.Street,
			"city":   q.City,
			"state":  q.Region,
		})
		if err != nil && !errors.Is(err, ErrNoMatch) {
			return nil, err
		}
	}

	if place == nil && strings.TrimSpace(q.PostalCode) != "" {
		place, err = c.search(ctx, map[string]string{"postalcode": q.PostalCode})
		if err != nil && !errors.Is(err, ErrNoMatch) {
			return nil, err
		}
	}

	if place == nil {
		return nil, ErrNoMatch
	}

	res := toResult(place)
	if res.Street == "" && res.Latitude != nil && res.Longitude != nil {
		rev, err := c.reverse(ctx, *res.Latitude, *res.Longitude)
		if err != nil {
			c.logger.Debug("reverse geocode fallback failed", zap.Error(err))
		} else {
			merge(res, toResult(rev))
		}
	}
	return res, nil
}

func (c *Client) search(ctx context.Context, params map[string]string) (*nominatimPlace, error) {
	query := map[string]string{
		"format":         "jsonv2",
		"addressdetails": "1",
		"limit":          "1",
	}
	if c.country != "" {
		query["country"] = c.country
	}
	for k, v := range params {
		if v = strings.TrimSpace(v); v != "" {
			query[k] = v
		}
	}

	var places []nominatimPlace
	if err := c.get(ctx, "/search", query, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		c.metrics.ObserveGeocode("no_match")
		return nil, ErrNoMatch
	}
	c.metrics.ObserveGeocode("ok")
	return &places[0], nil
}

func (c *Client) reverse(ctx context.Context, lat, lon float64) (*nominatimPlace, error) {
	var place nominatimPlace
	err := c.get(ctx, "/reverse", map[string]string{
		"format":         "jsonv2",
		"addressdetails": "1",
		"lat":            strconv.FormatFloat(lat, 'f', 7, 64),
		"lon":            strconv.FormatFloat(lon, 'f', 7, 64),
	}, &place)
	if err != nil {
		return nil, err
	}
	if place.Address == (nominatimAddress{}) {
		c.metrics.ObserveGeocode("no_match")
		return nil, ErrNoMatch
	}
	c.metrics.ObserveGeocode("ok")
	return &place, nil
}

// get runs one request through the queue.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	return c.queue.Do(ctx, func(ctx context.Context) error {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(out).
			Get(path)
		if err != nil {
			c.metrics.ObserveGeocode("error")
			return fmt.Errorf("failed to call geocoder: %w", err)
		}
		if resp.IsError() {
			c.metrics.ObserveGeocode("no_match")
			c.logger.Warn("geocoder returned non-OK status",
				zap.String("path", path),
				zap.Int("status_code", resp.StatusCode()),
			)
			return ErrNoMatch
		}
		return nil
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func toResult(p *nominatimPlace) *Result {
	a := p.Address
	res := &Result{
		Street:       a.Road,
		Neighborhood: firstNonEmpty(a.Suburb, a.Neighbourhood, a.Quarter, a.CityDistrict),
		City:         firstNonEmpty(a.City, a.Town, a.Village, a.Municipality),
		Region:       a.State,
		PostalCode:   a.Postcode,
	}
	if lat, err := strconv.ParseFloat(p.Lat, 64); err == nil {
		res.Latitude = &lat
	}
	if lon, err := strconv.ParseFloat(p.Lon, 64); err == nil {
		res.Longitude = &lon
	}
	return res
}

// merge fills empty fields of dst from src.
func merge(dst, src *Result) {
	if dst.Street == "" {
		dst.Street = src.Street
	}
	if dst.Neighborhood == "" {
		dst.Neighborhood = src.Neighborhood
	}
	if dst.City == "" {
		dst.City = src.City
	}
	if dst.Region == "" {
		dst.Region = src.Region
	}
	if dst.PostalCode == "" {
		dst.PostalCode = src.PostalCode
	}
}
