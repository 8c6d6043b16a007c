// Package geocode 基于 Nominatim 的坐标反查地址
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ixugo/goddd/pkg/conc"
)

const (
	DefaultURL       = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent = "AccidentDetectionSystem/1.0"

	// Unknown 无法解析时的地址与城市
	Unknown = "Unknown"
)

// Place 反查结果
type Place struct {
	Address string `json:"address"`
	City    string `json:"city"`
}

// UnknownPlace 地址与城市均未知
func UnknownPlace() Place {
	return Place{Address: Unknown, City: Unknown}
}

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Client 坐标反查客户端，结果按坐标缓存
type Client struct {
	cfg   Config
	http  *http.Client
	cache *conc.Map[string, Place]
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: conc.NewMap[string, Place](),
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

// Reverse 反查坐标对应的地址与城市
// 服务返回非 200 时视为未知地址，不返回错误，且不缓存
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	key := cacheKey(lat, lon)
	if p, ok := c.cache.Load(key); ok {
		return p, nil
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return Place{}, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UnknownPlace(), nil
	}

	var out reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Place{}, fmt.Errorf("decode geocode response: %w", err)
	}

	p := Place{Address: out.DisplayName, City: Unknown}
	if p.Address == "" {
		p.Address = Unknown
	}
	for _, v := range []string{out.Address.City, out.Address.Town, out.Address.Village} {
		if v != "" {
			p.City = v
			break
		}
	}
	c.cache.Store(key, p)
	return p, nil
}

func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
}
