package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser = "alice"
	testPwd  = "pw123"
)

// stubUpstream fakes the hospital portal API and records the query
// parameters of each request per path.
type stubUpstream struct {
	*httptest.Server
	mu      sync.Mutex
	queries map[string]url.Values
}

func (s *stubUpstream) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[r.URL.Path] = r.URL.Query()
}

func (s *stubUpstream) query(path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[path]
}

func newTestUpstream() *stubUpstream {
	stub := &stubUpstream{queries: make(map[string]url.Values)}
	mux := http.NewServeMux()

	mux.HandleFunc("/member/login", func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MemID != testUser || req.MemPwd != testPwd {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "upstream-token"})
	})

	mux.HandleFunc("/member/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"memId": testUser, "memName": "Alice"})
	})

	mux.HandleFunc("/mypage/mdcr/prsc/list", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		w.Write([]byte(`{
			"otpt": {"prscDtlList": [{"mdcrDprtNm":"Cardiology"},{"mdcrDprtNm":"Neurology"}]},
			"inpt": {"prscDtlList": [{"mdcrDprtNm":"Cardiology"}]}
		}`))
	})

	mux.HandleFunc("/mypage/payment/payed/list", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		w.Write([]byte(`{"list":[{"mdcrDprtNm":"Cardiology","mdrpNo":101}]}`))
	})

	mux.HandleFunc("/mypage/payment/payed/detail", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		w.Write([]byte(`{"mdrpNo":101,"list":[{"itemNm":"Consultation","amount":15000}]}`))
	})

	mux.HandleFunc("/mypage/reservation/list", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	stub.Server = httptest.NewServer(mux)
	return stub
}

// withTestPortal points the handlers at the stub upstream and gives
// each test a fresh session registry.
func withTestPortal(t *testing.T, srv *stubUpstream) {
	t.Helper()
	oldPortal, oldSessions := portal, sessions
	portal = newPortalClient(&Config{UpstreamBaseURL: srv.URL, DefaultHospitalCode: "AA"})
	sessions = newSessionRegistry()
	t.Cleanup(func() {
		portal, sessions = oldPortal, oldSessions
		srv.Close()
	})
}

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func asAuthenticated(c echo.Context, category string) {
	c.Set("username", testUser)
	c.Set("password", testPwd)
	if category != "" {
		c.SetParamNames("category")
		c.SetParamValues(category)
	}
}

func TestLoginHandler(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw123"}`)
	require.NoError(t, login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "bearer", resp.TokenType)

	// The issued token carries the upstream credentials
	username, password, err := parseAccessToken(resp.AccessToken, []byte(config.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, testUser, username)
	assert.Equal(t, testPwd, password)
}

func TestLoginHandlerBadCredentials(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"nope"}`)
	require.NoError(t, login(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestFetchRecordsThenFilter(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/records/medications", `{"start_date":20240101,"end_date":20240131}`)
	asAuthenticated(c, "medications")
	require.NoError(t, fetchRecords(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, []string{"Cardiology", "Neurology"}, resp.Facets)
	assert.Equal(t, map[string]int{"Cardiology": 2, "Neurology": 1}, resp.Counts)
	assert.Len(t, resp.Records, 3)

	// Filter from the cache, no re-fetch
	c, rec = newJSONContext(e, http.MethodPost, "/api/records/medications/filter", `{"facet":"Cardiology"}`)
	asAuthenticated(c, "medications")
	require.NoError(t, filterRecords(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var filtered APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.True(t, filtered.Success)

	view := filtered.Data.(map[string]any)
	assert.Len(t, view["otpt"].(map[string]any)["prscDtlList"], 1)
	assert.Len(t, view["inpt"].(map[string]any)["prscDtlList"], 1)

	// The cache still holds the unfiltered response
	raw, ok := sessions.cacheFor(testUser).Get(Medication)
	require.True(t, ok)
	assert.Equal(t, 3, recordTotal(Medication, raw))
}

func TestFilterWithoutFetchRefused(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/records/payments/filter", `{"facet":"Cardiology"}`)
	asAuthenticated(c, "payments")
	require.NoError(t, filterRecords(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	// The refusal leaves the cache untouched
	_, ok := sessions.cacheFor(testUser).Get(Payment)
	assert.False(t, ok)
}

func TestFetchRecordsFailureKeepsPreviousCache(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	// Prefill the session cache
	cache := sessions.cacheFor(testUser)
	previous := mustDecode(t, `[{"rsvtYmd":"20240101","dprtNm":"Cardiology"}]`)
	require.True(t, cache.Store(Reservation, previous, cache.BeginFetch(Reservation)))

	// The stubbed reservation endpoint always fails
	c, rec := newJSONContext(e, http.MethodPost, "/api/records/reservations", `{"start_date":20240101,"end_date":20240131}`)
	asAuthenticated(c, "reservations")
	require.NoError(t, fetchRecords(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	got, ok := cache.Get(Reservation)
	require.True(t, ok)
	assert.Equal(t, previous, got)
}

func TestFetchRecordsValidation(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	// Unknown category
	c, rec := newJSONContext(e, http.MethodPost, "/api/records/x-rays", `{"start_date":20240101,"end_date":20240131}`)
	asAuthenticated(c, "x-rays")
	require.NoError(t, fetchRecords(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing date range
	c, rec = newJSONContext(e, http.MethodPost, "/api/records/payments", `{}`)
	asAuthenticated(c, "payments")
	require.NoError(t, fetchRecords(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchRecordsQueryDefaults(t *testing.T) {
	srv := newTestUpstream()
	withTestPortal(t, srv)
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/records/payments", `{"start_date":20240101,"end_date":20240131}`)
	asAuthenticated(c, "payments")
	require.NoError(t, fetchRecords(c))
	require.Equal(t, http.StatusOK, rec.Code)

	q := srv.query("/mypage/payment/payed/list")
	require.NotNil(t, q)
	assert.Equal(t, "AA", q.Get("hpCd"))
	assert.Equal(t, "O", q.Get("codvCd"))
	assert.Equal(t, "20240101", q.Get("strtYmd"))
	assert.Equal(t, "20240131", q.Get("fnshYmd"))
}

func TestFetchRecordsQueryOverrides(t *testing.T) {
	srv := newTestUpstream()
	withTestPortal(t, srv)
	e := echo.New()

	body := `{"start_date":20240101,"end_date":20240131,"hospital_code":"GR","code_division":"I"}`
	c, rec := newJSONContext(e, http.MethodPost, "/api/records/payments", body)
	asAuthenticated(c, "payments")
	require.NoError(t, fetchRecords(c))
	require.Equal(t, http.StatusOK, rec.Code)

	q := srv.query("/mypage/payment/payed/list")
	require.NotNil(t, q)
	assert.Equal(t, "GR", q.Get("hpCd"))
	assert.Equal(t, "I", q.Get("codvCd"))
}

func TestPaymentDetailHandler(t *testing.T) {
	srv := newTestUpstream()
	withTestPortal(t, srv)
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/records/payments/detail", `{"mdrp_no":101}`)
	asAuthenticated(c, "")
	require.NoError(t, paymentDetail(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	detail := resp.Data.(map[string]any)
	assert.Equal(t, 101.0, detail["mdrpNo"])

	q := srv.query("/mypage/payment/payed/detail")
	require.NotNil(t, q)
	assert.Equal(t, "101", q.Get("mdrpNo"))
	assert.Equal(t, "AA", q.Get("hpCd"))

	// The receipt number is mandatory
	c, rec = newJSONContext(e, http.MethodPost, "/api/records/payments/detail", `{}`)
	asAuthenticated(c, "")
	require.NoError(t, paymentDetail(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeartbeat(t *testing.T) {
	oldVersion := appVersion
	appVersion = "1.2.3"
	t.Cleanup(func() { appVersion = oldVersion })

	e := echo.New()
	c, rec := newJSONContext(e, http.MethodGet, "/heartbeat", "")
	require.NoError(t, heartbeat(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "1.2.3", resp["version"])
}

func TestLogoutDropsSessionCache(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	cache := sessions.cacheFor(testUser)
	raw := mustDecode(t, `{"list":[{"dprtNm":"Cardiology"}]}`)
	require.True(t, cache.Store(Payment, raw, cache.BeginFetch(Payment)))

	c, rec := newJSONContext(e, http.MethodPost, "/api/auth/logout", "")
	asAuthenticated(c, "")
	require.NoError(t, logout(c))
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := sessions.cacheFor(testUser).Get(Payment)
	assert.False(t, ok)
}

func TestAuthRequiredMiddleware(t *testing.T) {
	withTestPortal(t, newTestUpstream())
	e := echo.New()

	handler := authRequired(func(c echo.Context) error {
		assert.Equal(t, testUser, c.Get("username"))
		assert.Equal(t, testPwd, c.Get("password"))
		return c.NoContent(http.StatusOK)
	})

	// No Authorization header
	c, rec := newJSONContext(e, http.MethodGet, "/api/user/info", "")
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token
	c, rec = newJSONContext(e, http.MethodGet, "/api/user/info", "")
	c.Request().Header.Set("Authorization", "Bearer not-a-token")
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token
	token, err := createAccessToken(testUser, testPwd, time.Minute, []byte(config.SecretKey))
	require.NoError(t, err)
	c, rec = newJSONContext(e, http.MethodGet, "/api/user/info", "")
	c.Request().Header.Set("Authorization", "Bearer "+token)
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
