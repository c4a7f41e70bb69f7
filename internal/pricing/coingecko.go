package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"txlens/internal/config"
	lenserrors "txlens/internal/errors"
)

// PriceSource 按合约地址查询美元现价
type PriceSource interface {
	CurrentPrice(ctx context.Context, address string) (string, error)
}

// CoinGeckoClient CoinGecko合约行情接口
type CoinGeckoClient struct {
	baseURL    string
	platform   string
	httpClient *http.Client
}

// NewCoinGeckoClient 根据配置创建客户端
func NewCoinGeckoClient(cfg *config.PricingConfig) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		platform:   cfg.Platform,
		httpClient: &http.Client{Timeout: cfg.TimeoutDuration()},
	}
}

// marketResponse 只解析需要的字段，数值保留原始字面量
type marketResponse struct {
	MarketData *struct {
		CurrentPrice map[string]json.Number `json:"current_price"`
	} `json:"market_data"`
}

// CurrentPrice 查询地址的美元价格，非200、缺字段或格式错误都返回PriceUnavailable
func (c *CoinGeckoClient) CurrentPrice(ctx context.Context, address string) (string, error) {
	url := fmt.Sprintf("%s/coins/%s/contract/%s", c.baseURL, c.platform, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", lenserrors.NewPriceUnavailable(address, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", lenserrors.NewPriceUnavailable(address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", lenserrors.NewPriceUnavailable(address, fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithContext("status", resp.StatusCode)
	}

	var body marketResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return "", lenserrors.NewPriceUnavailable(address, err)
	}
	if body.MarketData == nil {
		return "", lenserrors.NewPriceUnavailable(address, fmt.Errorf("missing market_data"))
	}

	price, ok := body.MarketData.CurrentPrice["usd"]
	if !ok || price.String() == "" {
		return "", lenserrors.NewPriceUnavailable(address, fmt.Errorf("missing current_price.usd"))
	}
	return price.String(), nil
}
