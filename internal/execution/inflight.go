package execution

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

// ErrDuplicateOrder 表示同标的同方向的订单仍在 TTL 窗口内。
// 引擎周期重入或信号抖动时，第二笔提交会在进入券商 API 前被拦下。
var ErrDuplicateOrder = fmt.Errorf("duplicate order in flight")

// OrderDeduper 按 (标的, 方向) 做短窗口订单去重。
//
// 去重必须是确定性的：交易里误拦一笔的代价远低于重复成交，
// 因此用普通 map 精确匹配，不用概率结构。
// 关注列表最多几十个标的，单锁足够。
type OrderDeduper struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]time.Time // orderKey -> expiresAt
}

// NewOrderDeduper 创建订单去重器。
// ttl 取一次下单往返的典型耗时上限，建议 1s~10s。
func NewOrderDeduper(ttl time.Duration) *OrderDeduper {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &OrderDeduper{ttl: ttl, m: make(map[string]time.Time)}
}

// orderKey 规范化去重键：大写标的 + 方向
func orderKey(symbol string, side domain.Side) string {
	return strings.ToUpper(symbol) + ":" + string(side)
}

// TryAcquire 尝试获取 (symbol, side) 的下单令牌。
// 窗口内已有同键订单时返回 ErrDuplicateOrder。
func (d *OrderDeduper) TryAcquire(symbol string, side domain.Side) error {
	if d == nil {
		return nil
	}
	key := orderKey(symbol, side)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// 惰性清理过期项
	for k, exp := range d.m {
		if !exp.After(now) {
			delete(d.m, k)
		}
	}

	if exp, ok := d.m[key]; ok && exp.After(now) {
		return ErrDuplicateOrder
	}
	d.m[key] = now.Add(d.ttl)
	return nil
}

// Release 提前释放 (symbol, side)，下单被拒后允许立刻重试。
func (d *OrderDeduper) Release(symbol string, side domain.Side) {
	if d == nil {
		return
	}
	d.mu.Lock()
	delete(d.m, orderKey(symbol, side))
	d.mu.Unlock()
}
