package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketlens/cache"
	"marketlens/config"
	"marketlens/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rows    map[string][]types.Row
	symbols []string
	err     error
	calls   map[string][]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string][]types.Row{}, calls: map[string][]interface{}{}}
}

func (f *fakeStore) record(name string, args ...interface{}) ([]types.Row, error) {
	f.calls[name] = args
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[name], nil
}

func (f *fakeStore) ETFDaily(_ context.Context, start time.Time, excluded []string) ([]types.Row, error) {
	return f.record("etf_daily", start, excluded)
}

func (f *fakeStore) ETFHoldings(_ context.Context, etf string, start time.Time) ([]types.Row, error) {
	return f.record("etf_holdings", etf, start)
}

func (f *fakeStore) ETFInfo(_ context.Context, etf string) ([]types.Row, error) {
	return f.record("etf_info", etf)
}

func (f *fakeStore) ETFList(_ context.Context, excluded []string) ([]string, error) {
	if _, err := f.record("etf_list", excluded); err != nil {
		return nil, err
	}
	return f.symbols, nil
}

func (f *fakeStore) Bonds(_ context.Context, country string, start time.Time) ([]types.Row, error) {
	return f.record("bonds", country, start)
}

func (f *fakeStore) USBonds(_ context.Context, start time.Time) ([]types.Row, error) {
	return f.record("us_bonds", start)
}

func (f *fakeStore) ShortSellLatest(_ context.Context) ([]types.Row, error) {
	return f.record("shortsell_latest")
}

func (f *fakeStore) ShortSellHistory(_ context.Context, code int64, days int) ([]types.Row, error) {
	return f.record("shortsell_history", code, days)
}

func (f *fakeStore) OptionsSnapshot(_ context.Context, symbol string) ([]types.Row, error) {
	return f.record("options_snapshot", symbol)
}

func (f *fakeStore) SnapshotSpot(_ context.Context, symbol string) ([]types.Row, error) {
	return f.record("snapshot_spot", symbol)
}

func newTestServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	s := NewServer(cfg, store, nil)
	s.now = func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) }
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func d(s string) time.Time {
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	rec := get(t, s, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp Response
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
}

func TestETFDaily_Normalizes(t *testing.T) {
	store := newFakeStore()
	store.rows["etf_daily"] = []types.Row{
		{"etf_symbol": "QQQ", "trade_date": d("2025-01-03"), "close": 440.0},
		{"etf_symbol": "SPY", "trade_date": d("2025-01-02"), "close": 500.0},
		{"etf_symbol": "QQQ", "trade_date": d("2025-01-02"), "close": 400.0},
		{"etf_symbol": "SPY", "trade_date": d("2025-01-03"), "close": 505.0},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/daily?start_date=2025-01-02")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]interface{}
	decode(t, rec, &out)
	require.Len(t, out, 4)

	byKey := map[string]float64{}
	for _, r := range out {
		byKey[r["etf_symbol"].(string)+" "+r["trade_date"].(string)] = r["normalized_price"].(float64)
	}
	assert.InDelta(t, 100, byKey["QQQ 2025-01-02"], 1e-9)
	assert.InDelta(t, 110, byKey["QQQ 2025-01-03"], 1e-9)
	assert.InDelta(t, 100, byKey["SPY 2025-01-02"], 1e-9)
	assert.InDelta(t, 101, byKey["SPY 2025-01-03"], 1e-9)

	args := store.calls["etf_daily"]
	assert.Equal(t, d("2025-01-02"), args[0])
	assert.Equal(t, []string{"UVIX"}, args[1])
}

func TestETFDaily_DefaultStartDate(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Equal(t, d("2025-01-01"), store.calls["etf_daily"][0])
}

func TestETFDaily_InvalidStartDate(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/daily?start_date=01/02/2025")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotContains(t, store.calls, "etf_daily")
}

func TestETFDaily_QueryError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/daily")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp Response
	decode(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestETFDailyExport(t *testing.T) {
	store := newFakeStore()
	store.rows["etf_daily"] = []types.Row{
		{"etf_symbol": "QQQ", "trade_date": d("2025-01-02"), "close": 400.0},
		{"etf_symbol": "QQQ", "trade_date": d("2025-01-03"), "close": 420.0},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/daily/export?start_date=2025-01-02")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "etf_daily_20250102.csv.gz")

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "QQQ,2025-01-03")
	assert.Contains(t, string(body), "105")
}

func TestETFHoldings(t *testing.T) {
	store := newFakeStore()
	store.rows["etf_holdings"] = []types.Row{
		{"stock_symbol": "AAPL", "trade_date": d("2025-01-02"), "close": nil},
		{"stock_symbol": "AAPL", "trade_date": d("2025-01-03"), "close": 200.0},
		{"stock_symbol": "AAPL", "trade_date": d("2025-01-06"), "close": 210.0},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/holdings/QQQ")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]interface{}
	decode(t, rec, &out)
	require.Len(t, out, 3)
	assert.Nil(t, out[0]["normalized_price"])
	assert.InDelta(t, 100, out[1]["normalized_price"], 1e-9)
	assert.InDelta(t, 105, out[2]["normalized_price"], 1e-9)
	assert.Equal(t, "QQQ", store.calls["etf_holdings"][0])
}

func TestETFList(t *testing.T) {
	store := newFakeStore()
	store.symbols = []string{"QQQ", "SPY"}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/etf/list")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []string
	decode(t, rec, &out)
	assert.Equal(t, []string{"QQQ", "SPY"}, out)
}

func TestBonds_DropsIncompleteRows(t *testing.T) {
	store := newFakeStore()
	store.rows["bonds"] = []types.Row{
		{"trade_date": d("2025-01-03"), "yield": 1.1},
		{"trade_date": d("2025-01-02"), "yield": nil},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/bonds/jp")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]interface{}
	decode(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "2025-01-03", out[0]["trade_date"])
	assert.Equal(t, "jp", store.calls["bonds"][0])
}

func TestBonds_QueryErrorReturnsEmptyList(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("boom")
	s := newTestServer(t, store)

	for _, path := range []string{"/api/bonds/US", "/api/us_bonds"} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "[]\n", rec.Body.String(), path)
	}
}

func TestUSBonds(t *testing.T) {
	store := newFakeStore()
	store.rows["us_bonds"] = []types.Row{
		{"trade_date": d("2024-01-02"), "yield_1y": 4.8, "yield_10y": 3.9, "yield_20y": 4.2},
		{"trade_date": d("2024-01-03"), "yield_1y": 4.8, "yield_10y": nil, "yield_20y": 4.2},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/us_bonds")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]interface{}
	decode(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, d("2024-01-01"), store.calls["us_bonds"][0])
}

func TestShortSellLatest(t *testing.T) {
	store := newFakeStore()
	store.rows["shortsell_latest"] = []types.Row{
		{"stock_code": "00700", "short_ratio": 20.5, "trade_date": d("2025-05-30")},
		{"stock_code": "09988", "short_ratio": 12.0, "trade_date": d("2025-05-30")},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/shortsell/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Data       []map[string]interface{} `json:"data"`
		LatestDate *string                  `json:"latest_date"`
	}
	decode(t, rec, &out)
	assert.Len(t, out.Data, 2)
	require.NotNil(t, out.LatestDate)
	assert.Equal(t, "2025-05-30", *out.LatestDate)
}

func TestShortSellLatest_Empty(t *testing.T) {
	s := newTestServer(t, newFakeStore())

	rec := get(t, s, "/api/shortsell/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": [], "latest_date": null}`, rec.Body.String())
}

func TestShortSellHistory(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store)

	rec := get(t, s, "/api/shortsell/history/00700")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{int64(700), 30}, store.calls["shortsell_history"])

	rec = get(t, s, "/api/shortsell/history/abc")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOptionsData_InvalidSymbol(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store)

	rec := get(t, s, "/api/options/data/NVDA")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, store.calls, "options_snapshot")

	rec = get(t, s, "/api/options/position_value/NVDA")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionsData_Buckets(t *testing.T) {
	store := newFakeStore()
	observed := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
	store.rows["options_snapshot"] = []types.Row{
		{"observed_at": observed, "strike": 500.0, "option_type": "call", "expiration_date": d("2025-06-06"), "volume": int64(10), "open_interest": int64(100)},
		{"observed_at": observed, "strike": 500.0, "option_type": "call", "expiration_date": d("2025-06-06"), "volume": int64(5), "open_interest": nil},
		{"observed_at": observed, "strike": 480.0, "option_type": "put", "expiration_date": d("2025-08-15"), "volume": int64(3), "open_interest": int64(30)},
		{"observed_at": observed, "strike": 450.0, "option_type": "put", "expiration_date": d("2025-12-19"), "volume": int64(1), "open_interest": int64(7)},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/options/data/spy")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SPY", store.calls["options_snapshot"][0])

	var out types.TermBuckets
	decode(t, rec, &out)
	require.Len(t, out.ShortTerm, 1)
	assert.Equal(t, int64(15), out.ShortTerm[0].TotalVolume)
	assert.Equal(t, int64(100), out.ShortTerm[0].TotalOpenInterest)
	assert.Len(t, out.NearTerm, 1)
	assert.Len(t, out.FarTerm, 1)
	require.NotNil(t, out.LatestDate)
	assert.Equal(t, "2025-06-02", out.LatestDate.String())
}

func TestOptionsPositionValue(t *testing.T) {
	store := newFakeStore()
	observed := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
	store.rows["options_snapshot"] = []types.Row{
		{"observed_at": observed, "strike": 100.0, "option_type": "call", "expiration_date": d("2025-06-20"), "volume": int64(1), "open_interest": int64(1000)},
		{"observed_at": observed, "strike": 80.0, "option_type": "put", "expiration_date": d("2025-06-20"), "volume": int64(1), "open_interest": int64(500)},
	}
	store.rows["snapshot_spot"] = []types.Row{
		{"trade_date": d("2025-06-02"), "close": 100.0},
	}
	s := newTestServer(t, store)

	rec := get(t, s, "/api/options/position_value/SPY")
	require.Equal(t, http.StatusOK, rec.Code)

	var out types.PositionValue
	decode(t, rec, &out)
	require.NotNil(t, out.SpotPrice)
	assert.Equal(t, 100.0, *out.SpotPrice)
	// 1000 * 100 * 100 / 1e8
	assert.InDelta(t, 0.1, out.MainBattle.Call, 1e-9)
	// 500 * 100 * 80 / 1e8
	assert.InDelta(t, 0.04, out.Support.Put, 1e-9)
	assert.InDelta(t, 0.1, out.Total.Call, 1e-9)
	assert.InDelta(t, 0.04, out.Total.Put, 1e-9)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	req := httptest.NewRequest(http.MethodOptions, "/api/etf/list", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestZstdCompression(t *testing.T) {
	store := newFakeStore()
	store.symbols = []string{"QQQ"}
	s := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/etf/list", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "zstd", rec.Header().Get("Content-Encoding"))
	dec, err := zstd.NewReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer dec.Close()

	body, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.JSONEq(t, `["QQQ"]`, string(body))
}

func TestOptionsData_CacheFollowsProcessingDate(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCfg := &config.RedisConfig{Enabled: true, URL: "redis://" + mr.Addr(), TTL: "1h"}
	require.NoError(t, redisCfg.ToDuration())
	responseCache, err := cache.NewResponseCache(context.Background(), redisCfg)
	require.NoError(t, err)
	defer responseCache.Close()

	store := newFakeStore()
	observed := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	store.rows["options_snapshot"] = []types.Row{
		// 14 days out on 2025-06-02, 15 days out a day earlier
		{"observed_at": observed, "strike": 500.0, "option_type": "call", "expiration_date": d("2025-06-16"), "volume": int64(1), "open_interest": int64(1)},
	}

	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	cfg.Server.Compression = false
	s := NewServer(cfg, store, responseCache)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC) }

	var out types.TermBuckets
	rec := get(t, s, "/api/options/data/SPY")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	decode(t, rec, &out)
	assert.Len(t, out.NearTerm, 1)

	rec = get(t, s, "/api/options/data/SPY")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	s.now = func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) }
	rec = get(t, s, "/api/options/data/SPY")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	out = types.TermBuckets{}
	decode(t, rec, &out)
	assert.Len(t, out.ShortTerm, 1)
	assert.Empty(t, out.NearTerm)
}

func TestZstdMiddleware_FlushAndQualityValues(t *testing.T) {
	h := ZstdMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"part":1}`))
		require.NoError(t, http.NewResponseController(w).Flush())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/etf/list", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd;q=0.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, rec.Flushed)
	assert.Equal(t, "zstd", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))

	dec, err := zstd.NewReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer dec.Close()
	body, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"part":1}`, string(body))

	plain := httptest.NewRecorder()
	h.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/api/etf/list", nil))
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.JSONEq(t, `{"part":1}`, plain.Body.String())
}
