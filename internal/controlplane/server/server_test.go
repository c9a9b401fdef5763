package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/engine"
	"github.com/stockbot/gostock/internal/notify"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/persistence"
)

type stubData struct{}

func (stubData) GetQuote(context.Context, string) (float64, error) { return 100, nil }
func (stubData) GetBars(context.Context, string, ports.Interval, time.Duration) ([]domain.Bar, error) {
	return nil, nil
}
func (stubData) GetPositions(context.Context) ([]domain.Position, error) { return nil, nil }
func (stubData) GetAccount(context.Context) (*domain.Account, error) {
	return &domain.Account{}, nil
}

type stubExec struct{}

func (stubExec) SubmitMarketOrder(context.Context, string, float64, domain.Side) (*ports.OrderResult, error) {
	return &ports.OrderResult{OrderID: "x", Status: "filled"}, nil
}

type stubHours struct{}

func (stubHours) IsOpen(time.Time) bool              { return true }
func (stubHours) MinutesSinceOpen(time.Time) float64 { return 60 }

type stubTickers struct{}

func (stubTickers) BuildTicker(_ context.Context, symbol string) (*domain.Ticker, error) {
	return &domain.Ticker{Symbol: symbol, Price: 100, ChangePercent: 1}, nil
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	svc := persistence.NewJSONFileService(t.TempDir())
	cfg := config.NewManager(svc)
	eng, err := engine.New(cfg, stubData{}, stubExec{}, notify.NopNotifier{}, stubHours{}, stubTickers{}, svc, nil)
	require.NoError(t, err)
	return New(eng, nil), eng
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestEnableDisable(t *testing.T) {
	s, eng := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/trading/enable", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, eng.Config().Enabled, "enable 后配置应生效")

	w = doRequest(t, s, http.MethodPost, "/api/trading/disable", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, eng.Config().Enabled, "disable 后配置应生效")
}

func TestStatusShape(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	for _, key := range []string{"enabled", "mode", "marketOpen", "tradesToday"} {
		require.Contains(t, got, key)
	}
}

func TestConfigUpdateRejectsInvalid(t *testing.T) {
	s, eng := newTestServer(t)
	before := eng.Config()

	// 极端卖出阈值高于普通卖出阈值，校验必须拒绝
	bad := before
	bad.ExtremeSellThreshold = 9
	body, _ := json.Marshal(bad)
	w := doRequest(t, s, http.MethodPut, "/api/trading/config", string(body))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	require.Equal(t, before.ExtremeSellThreshold, eng.Config().ExtremeSellThreshold,
		"拒绝的配置不应生效")
}

func TestConfigUpdateApplies(t *testing.T) {
	s, eng := newTestServer(t)

	next := eng.Config()
	next.Watchlist = []string{"AAPL", "MSFT"}
	next.MaxDailyTrades = 5
	body, _ := json.Marshal(next)
	w := doRequest(t, s, http.MethodPut, "/api/trading/config", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := eng.Config()
	require.Equal(t, 5, got.MaxDailyTrades)
	require.Len(t, got.Watchlist, 2)
}

func TestPendingEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/api/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
}
