package cache

import "time"

// QuoteCache 报价缓存（symbol -> 最新价）
// 用于限制对行情源的调用频率。
type QuoteCache struct {
	cache *InMemoryCache[string, float64]
}

// NewQuoteCache 创建新的报价缓存
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &QuoteCache{
		cache: NewInMemoryCache[string, float64](ttl),
	}
}

// Get 获取报价
func (qc *QuoteCache) Get(symbol string) (float64, bool) {
	return qc.cache.Get(symbol)
}

// Set 设置报价
func (qc *QuoteCache) Set(symbol string, price float64) {
	qc.cache.Set(symbol, price, 0)
}
