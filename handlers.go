package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var (
	appVersion string
)

func heartbeat(c echo.Context) error {
	// Heartbeat function to assess service status
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": appVersion,
	})
}

func login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "username and password are required"})
	}

	// Verify the credentials against the hospital portal
	if _, err := portal.SignIn(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, errUpstreamAuth) {
			return c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "로그인 실패", TokenType: "bearer"})
		}
		logger(c.Request().Context(), err)
		return c.JSON(http.StatusBadGateway, LoginResponse{Success: false, Message: "로그인 실패", TokenType: "bearer"})
	}

	ttl := time.Duration(config.TokenTTLMinutes) * time.Minute
	accessToken, err := createAccessToken(req.Username, req.Password, ttl, []byte(config.SecretKey))
	if err != nil {
		logger(c.Request().Context(), err)
		return c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "로그인 실패", TokenType: "bearer"})
	}

	// Session record cache lives from login to logout
	sessions.cacheFor(req.Username)

	return c.JSON(http.StatusOK, LoginResponse{
		Success:     true,
		Message:     "로그인 성공",
		AccessToken: accessToken,
		TokenType:   "bearer",
	})
}

func logout(c echo.Context) error {
	username := c.Get("username").(string)
	sessions.drop(username)
	return c.JSON(http.StatusOK, APIResponse{Success: true, Message: "로그아웃 되었습니다"})
}

func userInfo(c echo.Context) error {
	username := c.Get("username").(string)
	password := c.Get("password").(string)
	ctx := c.Request().Context()

	upstreamToken, err := portal.SignIn(ctx, username, password)
	if err != nil {
		return upstreamError(c, err)
	}
	info, err := portal.FetchUserInfo(ctx, upstreamToken)
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSON(http.StatusOK, APIResponse{Success: true, Data: info})
}

// fetchRecords queries the upstream API for one category, stores the
// verbatim response in the session cache, and returns it together
// with the canonical record list and the facet selector data.
func fetchRecords(c echo.Context) error {
	category, err := categoryParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}

	var req RecordsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}
	if req.StartDate == 0 || req.EndDate == 0 {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "start_date and end_date are required"})
	}

	username := c.Get("username").(string)
	password := c.Get("password").(string)
	ctx := c.Request().Context()
	cache := sessions.cacheFor(username)

	// Reserve the sequence token before the upstream round trip so a
	// newer fetch can invalidate this one while it is in flight.
	token := cache.BeginFetch(category)

	upstreamToken, err := portal.SignIn(ctx, username, password)
	if err != nil {
		return upstreamError(c, err)
	}
	raw, err := portal.FetchRecords(ctx, upstreamToken, category, RecordsQuery{
		Start:        req.StartDate,
		End:          req.EndDate,
		Hospital:     req.HospitalCode,
		CodeDivision: req.CodeDivision,
	})
	if err != nil {
		// Cache keeps its previous value on failure
		return upstreamError(c, err)
	}

	if !cache.Store(category, raw, token) {
		zapLogger.Warn("stale fetch discarded",
			zap.String("category", category.String()),
			zap.String("user", username))
	}

	return c.JSON(http.StatusOK, RecordsResponse{
		Success: true,
		Data:    raw,
		Records: extractSequence(category, raw),
		Facets:  distinctFacets(category, raw),
		Counts:  facetCounts(category, raw),
		Total:   recordTotal(category, raw),
	})
}

// paymentDetail looks up one payment's line items by receipt number.
// Details bypass the record cache: they are per-receipt lookups, not
// a filterable category listing.
func paymentDetail(c echo.Context) error {
	var req PaymentDetailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}
	if req.MdrpNo == 0 {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "mdrp_no is required"})
	}

	username := c.Get("username").(string)
	password := c.Get("password").(string)
	ctx := c.Request().Context()

	upstreamToken, err := portal.SignIn(ctx, username, password)
	if err != nil {
		return upstreamError(c, err)
	}
	detail, err := portal.FetchPaymentDetail(ctx, upstreamToken, req.HospitalCode, req.MdrpNo)
	if err != nil {
		return upstreamError(c, err)
	}
	return c.JSON(http.StatusOK, APIResponse{Success: true, Data: detail})
}

func listFacets(c echo.Context) error {
	category, err := categoryParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}

	username := c.Get("username").(string)
	raw, ok := sessions.cacheFor(username).Get(category)
	if !ok {
		return c.JSON(http.StatusConflict, APIResponse{Success: false, Message: "먼저 데이터를 조회해 주세요"})
	}

	return c.JSON(http.StatusOK, FacetsResponse{
		Success: true,
		Facets:  distinctFacets(category, raw),
		Counts:  facetCounts(category, raw),
		Total:   recordTotal(category, raw),
	})
}

// filterRecords applies a department facet to the cached response
// for a category. It never re-queries the upstream API; without a
// cached response the request is refused.
func filterRecords(c echo.Context) error {
	category, err := categoryParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}

	var req FilterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	}

	username := c.Get("username").(string)
	raw, ok := sessions.cacheFor(username).Get(category)
	if !ok {
		return c.JSON(http.StatusConflict, APIResponse{Success: false, Message: "먼저 데이터를 조회해 주세요"})
	}

	view := applyFacet(category, raw, req.Facet)
	return c.JSON(http.StatusOK, APIResponse{Success: true, Data: view})
}

func categoryParam(c echo.Context) (Category, error) {
	return parseCategory(c.Param("category"))
}

func upstreamError(c echo.Context, err error) error {
	logger(c.Request().Context(), err)
	if errors.Is(err, errUpstreamAuth) {
		return c.JSON(http.StatusUnauthorized, APIResponse{Success: false, Message: "인증에 실패했습니다"})
	}
	return c.JSON(http.StatusBadGateway, APIResponse{Success: false, Message: "병원 API 요청에 실패했습니다"})
}
