package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.elastic.co/apm"
)

// Sentinel errors so callers can tell a rejected credential from a
// broken connection. Empty data is a success, not an error.
var (
	errUpstreamAuth      = errors.New("upstream authentication failed")
	errUpstreamTransport = errors.New("upstream request failed")
)

// PortalClient talks to the hospital portal API. One sign-in per
// request, as the upstream session is short lived.
type PortalClient struct {
	baseURL  string
	hospital string
}

func newPortalClient(cfg *Config) *PortalClient {
	return &PortalClient{
		baseURL:  cfg.UpstreamBaseURL,
		hospital: cfg.DefaultHospitalCode,
	}
}

// Per-category history endpoints.
var categoryEndpoints = map[Category]string{
	Reservation:     "/mypage/reservation/list",
	LabTest:         "/mypage/mdcr/rslt/list",
	Medication:      "/mypage/mdcr/prsc/list",
	Outpatient:      "/mypage/mdcr/care/list",
	Hospitalization: "/mypage/mdcr/care/list",
	Payment:         "/mypage/payment/payed/list",
}

// RecordsQuery bounds one history query, dates as YYYYMMDD. Hospital
// and CodeDivision fall back to the configured defaults when empty.
type RecordsQuery struct {
	Start        int
	End          int
	Hospital     string
	CodeDivision string
}

type signInRequest struct {
	MemID  string `json:"memId"`
	MemPwd string `json:"memPwd"`
}

type signInResponse struct {
	AccessToken string `json:"accessToken"`
}

// SignIn authenticates against the portal and returns the upstream
// access token for follow-up queries.
func (pc *PortalClient) SignIn(ctx context.Context, username, password string) (string, error) {
	span, ctx := apm.StartSpan(ctx, "Portal Sign In", "Portal")
	defer span.End()

	payload, err := json.Marshal(signInRequest{MemID: username, MemPwd: password})
	if err != nil {
		return "", err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	resp, err := sendRequest(ctx, http.MethodPost, pc.baseURL+"/member/login", nil, headers, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w (status %d)", errUpstreamAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: sign-in returned %d: %s", errUpstreamTransport, resp.StatusCode, string(body))
	}

	var signIn signInResponse
	if err := json.Unmarshal(body, &signIn); err != nil {
		return "", fmt.Errorf("%w: malformed sign-in response: %v", errUpstreamTransport, err)
	}
	return signIn.AccessToken, nil
}

// FetchRecords queries one category's history for a date range and
// returns the decoded payload verbatim. The envelope differs per
// category and is left for the shape adapter to interpret.
func (pc *PortalClient) FetchRecords(ctx context.Context, accessToken string, c Category, q RecordsQuery) (any, error) {
	span, ctx := apm.StartSpan(ctx, "Fetch "+c.String(), "Portal")
	defer span.End()

	endpoint, ok := categoryEndpoints[c]
	if !ok {
		return nil, fmt.Errorf("no endpoint for category %s", c)
	}

	queryParams := url.Values{}
	queryParams.Add("hpCd", pc.hospitalOr(q.Hospital))
	addRangeParams(&queryParams, c, q)

	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	resp, err := sendRequest(ctx, http.MethodGet, pc.baseURL+endpoint, queryParams, headers, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w (status %d)", errUpstreamAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", errUpstreamTransport, endpoint, resp.StatusCode, string(body))
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed %s response: %v", errUpstreamTransport, c, err)
	}
	return raw, nil
}

// FetchPaymentDetail returns the line items of one completed
// payment, looked up by its receipt number. Details are queried
// directly and never cached or faceted.
func (pc *PortalClient) FetchPaymentDetail(ctx context.Context, accessToken string, hospital string, mdrpNo int) (any, error) {
	span, ctx := apm.StartSpan(ctx, "Fetch Payment Detail", "Portal")
	defer span.End()

	queryParams := url.Values{}
	queryParams.Add("hpCd", pc.hospitalOr(hospital))
	queryParams.Add("mdrpNo", strconv.Itoa(mdrpNo))

	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	resp, err := sendRequest(ctx, http.MethodGet, pc.baseURL+"/mypage/payment/payed/detail", queryParams, headers, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w (status %d)", errUpstreamAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: payment detail returned %d: %s", errUpstreamTransport, resp.StatusCode, string(body))
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed payment detail response: %v", errUpstreamTransport, err)
	}
	return raw, nil
}

// FetchUserInfo returns the signed-in member's profile.
func (pc *PortalClient) FetchUserInfo(ctx context.Context, accessToken string) (any, error) {
	span, ctx := apm.StartSpan(ctx, "Fetch User Info", "Portal")
	defer span.End()

	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	resp, err := sendRequest(ctx, http.MethodGet, pc.baseURL+"/member/info", nil, headers, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUpstreamTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w (status %d)", errUpstreamAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: member info returned %d: %s", errUpstreamTransport, resp.StatusCode, string(body))
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed member info response: %v", errUpstreamTransport, err)
	}
	return raw, nil
}

func (pc *PortalClient) hospitalOr(hospital string) string {
	if hospital == "" {
		return pc.hospital
	}
	return hospital
}

// addRangeParams sets the date range parameters, whose names differ
// per upstream endpoint.
func addRangeParams(queryParams *url.Values, c Category, q RecordsQuery) {
	start := strconv.Itoa(q.Start)
	end := strconv.Itoa(q.End)

	switch c {
	case Reservation:
		queryParams.Add("apstYmd", start)
		queryParams.Add("apfnYmd", end)
	case LabTest:
		queryParams.Add("strtYmd", start)
		queryParams.Add("fnshYmd", end)
	case Medication:
		queryParams.Add("ordrYmd1", start)
		queryParams.Add("ordrYmd2", end)
	case Outpatient:
		queryParams.Add("inqrStrtYmd", start)
		queryParams.Add("inqrFnshYmd", end)
		queryParams.Add("inqrDvsnCd", "2")
	case Hospitalization:
		queryParams.Add("inqrStrtYmd", start)
		queryParams.Add("inqrFnshYmd", end)
		queryParams.Add("inqrDvsnCd", "3")
	case Payment:
		queryParams.Add("strtYmd", start)
		queryParams.Add("fnshYmd", end)
		// Division code defaults to outpatient payments
		codv := q.CodeDivision
		if codv == "" {
			codv = "O"
		}
		queryParams.Add("codvCd", codv)
	}
}
