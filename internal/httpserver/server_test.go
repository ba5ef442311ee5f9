package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Skotchmaster/marketplace/internal/identity"
	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/internal/testutil"
	"github.com/Skotchmaster/marketplace/pkg/events"
	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/Skotchmaster/marketplace/pkg/tokens"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSessionSecret = "test-session-secret"
	testWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

type server struct {
	e    *echo.Echo
	repo *repo.GormRepo
	pay  *payments.Fake
}

func newServer(t *testing.T, rps int) *server {
	t.Helper()

	db := testutil.NewDB(t)
	r := &repo.GormRepo{DB: db}
	pay := payments.NewFake()
	rec := &events.Recorder{}

	verifier, err := tokens.NewVerifier([]byte(testSessionSecret), nil)
	require.NoError(t, err)
	webhooks, err := identity.NewVerifier(testWebhookSecret)
	require.NoError(t, err)

	accounts := &service.AccountService{Repo: r, Payments: pay, Events: rec, PublicURL: "https://shop.example"}
	tags := &service.TagService{Repo: r}

	e := echo.New()
	Register(e, &Deps{
		DB:      db,
		Session: middleware.NewSessionMiddleware(verifier),
		Catalog: &CatalogHTTP{
			Svc:  &service.CatalogService{Repo: r, Payments: pay, Events: rec, Compensation: service.Compensator{Attempts: 1}},
			Tags: tags,
		},
		Tags:         &TagHTTP{Svc: tags},
		Checkout:     &CheckoutHTTP{Svc: &service.CheckoutService{Repo: r, Payments: pay, Events: rec, FeePercent: 10, PublicURL: "https://shop.example"}},
		Requests:     &RequestHTTP{Svc: &service.RequestService{Repo: r, Payments: pay, Events: rec, FeePercent: 10, PublicURL: "https://shop.example"}},
		Marketplaces: &MarketplaceHTTP{Svc: &service.MarketplaceService{Repo: r, Events: rec}},
		Accounts:     &AccountHTTP{Svc: accounts},
		Webhooks:     &WebhookHTTP{Verifier: webhooks, Svc: accounts},
		RateLimitRPS: rps,
	})
	return &server{e: e, repo: r, pay: pay}
}

func sessionToken(t *testing.T, userID string) string {
	t.Helper()
	claims := tokens.SessionClaims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSessionSecret))
	require.NoError(t, err)
	return tok
}

// do sends body as JSON on behalf of user; an empty user sends no token.
func (s *server) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+sessionToken(t, user))
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *server) connect(t *testing.T, user string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/stripe/connect", user, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func productBody(name string, amount int64, style models.PaymentStyle) string {
	return fmt.Sprintf(`{"name":%q,"description":"handmade","prices":[{"unit_amount":%d,"currency":"usd","is_default":true,"payment_style":%q,"allocated_quantity":1}],"tags":["clay"]}`,
		name, amount, style)
}

func (s *server) createProduct(t *testing.T, user, name string, amount int64, style models.PaymentStyle) models.Product {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/products", user, productBody(name, amount, style))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Product](t, rec)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "", "").Code)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/me", "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: sessionToken(t, "cookie-user")})
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProducts_CRUDAndOwnership(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)
	s.connect(t, "seller")

	prod := s.createProduct(t, "seller", "Vase", 1200, models.PaymentInstant)
	require.NotNil(t, prod.StripeProductID)
	require.Len(t, prod.Prices, 1)
	assert.True(t, prod.Prices[0].Synced())

	path := "/api/products/" + prod.ID.String()
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, "seller", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, "intruder", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/products/not-a-uuid", "seller", "").Code)

	update := fmt.Sprintf(`{"name":"Tall vase","prices":[{"id":%q,"unit_amount":1500,"currency":"usd","is_default":true,"allocated_quantity":2}]}`, prod.Prices[0].ID)
	rec := s.do(t, http.MethodPut, path, "seller", update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Product](t, rec)
	assert.Equal(t, "Tall vase", updated.Name)
	assert.Equal(t, int64(1500), updated.Prices[0].UnitAmount)

	tags := decode[[]models.Tag](t, s.do(t, http.MethodGet, path+"/tags", "seller", ""))
	require.Len(t, tags, 1)
	assert.Equal(t, "clay", tags[0].Name)

	list := decode[map[string][]models.Product](t, s.do(t, http.MethodGet, "/api/products", "seller", ""))
	assert.Len(t, list["data"], 1)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, path, "intruder", "").Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path+"?delete_remote=true", "seller", "").Code)
	assert.Equal(t, 1, s.pay.Calls(payments.OpArchiveProduct))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "seller", "").Code)
}

func TestProducts_InvalidBodyNeverReachesProcessor(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)
	s.connect(t, "seller")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"missing name", `{"prices":[{"unit_amount":100,"is_default":true}]}`},
		{"no prices", `{"name":"Vase","prices":[]}`},
		{"zero amount", `{"name":"Vase","prices":[{"unit_amount":0,"is_default":true}]}`},
		{"bad style", `{"name":"Vase","prices":[{"unit_amount":100,"is_default":true,"payment_style":"LATER"}]}`},
		{"two defaults", `{"name":"Vase","prices":[{"unit_amount":100,"is_default":true},{"unit_amount":200,"is_default":true}]}`},
		{"amount above limit", `{"name":"Vase","prices":[{"unit_amount":100000000,"is_default":true}]}`},
		{"huge amount", `{"name":"Vase","prices":[{"unit_amount":4611686018427387904,"is_default":true}]}`},
		{"comma in tag", `{"name":"Vase","prices":[{"unit_amount":100,"is_default":true}],"tags":["red,blue"]}`},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodPost, "/api/products", "seller", tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
	}
	assert.Zero(t, s.pay.Calls(payments.OpCreateProduct))
}

func TestProducts_SyncAfterConnect(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	prod := s.createProduct(t, "seller", "Bowl", 800, models.PaymentInstant)
	assert.Nil(t, prod.StripeProductID)

	body := fmt.Sprintf(`{"product_id":%q}`, prod.ID)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/products/sync", "seller", body).Code)

	s.connect(t, "seller")
	rec := s.do(t, http.MethodPost, "/api/products/sync", "seller", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	synced := decode[models.Product](t, rec)
	assert.True(t, synced.Synced())

	report := decode[service.SyncReport](t, s.do(t, http.MethodPost, "/api/products/sync-all", "seller", ""))
	assert.Empty(t, report.Failed)
}

func TestProducts_SearchPaginates(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	for i := 0; i < 3; i++ {
		s.createProduct(t, "seller", "Mug "+strconv.Itoa(i), 500, models.PaymentInstant)
	}
	s.createProduct(t, "seller", "Scarf", 900, models.PaymentInstant)

	rec := s.do(t, http.MethodGet, "/api/products/search?q=mug&page=2&size=2", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data []map[string]any `json:"data"`
		Meta map[string]any   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Data, 1)
	assert.EqualValues(t, 3, out.Meta["total"])
	assert.EqualValues(t, 2, out.Meta["total_pages"])
	assert.Equal(t, true, out.Meta["has_prev"])
	assert.Equal(t, false, out.Meta["has_next"])
}

func TestCheckout(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	offline := s.createProduct(t, "offline", "Quilt", 800, models.PaymentInstant)
	body := fmt.Sprintf(`{"items":[{"product_id":%q,"price_id":%q,"quantity":1}]}`, offline.ID, offline.Prices[0].ID)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/checkout", "buyer", body).Code)

	s.connect(t, "seller")
	vase := s.createProduct(t, "seller", "Vase", 1000, models.PaymentInstant)
	body = fmt.Sprintf(`{"items":[{"product_id":%q,"price_id":%q,"quantity":2}]}`, vase.ID, vase.Prices[0].ID)
	rec := s.do(t, http.MethodPost, "/api/checkout", "buyer", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.CheckoutResult](t, rec)
	assert.Equal(t, models.PaymentInstant, res.Mode)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, int64(200), res.Sessions[0].Fee)
	assert.NotEmpty(t, res.URL)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/checkout", "buyer", `{"items":[]}`).Code)
	huge := fmt.Sprintf(`{"items":[{"product_id":%q,"price_id":%q,"quantity":100000}]}`, vase.ID, vase.Prices[0].ID)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/checkout", "buyer", huge).Code)
	assert.Equal(t, 1, s.pay.Calls(payments.OpCreateSession))

	s.pay.FailOn(payments.OpCreateSession, payments.ErrMissingAccount)
	assert.Equal(t, http.StatusBadGateway, s.do(t, http.MethodPost, "/api/checkout", "buyer", body).Code)
}

func TestCheckout_RateLimited(t *testing.T) {
	t.Parallel()
	s := newServer(t, 1)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, s.do(t, http.MethodPost, "/api/checkout", "buyer", `{"items":[]}`).Code)
	}
	assert.Equal(t, http.StatusBadRequest, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}

func TestPurchaseRequests_ApproveFlow(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)
	s.connect(t, "seller")
	commission := s.createProduct(t, "seller", "Commission", 5000, models.PaymentRequest)

	rec := s.do(t, http.MethodPost, "/api/purchase-requests", "buyer", fmt.Sprintf(`{"product_id":%q,"quantity":2}`, commission.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pr := decode[models.PurchaseRequest](t, rec)
	assert.Equal(t, models.RequestPending, pr.Status)

	selling := decode[[]models.PurchaseRequest](t, s.do(t, http.MethodGet, "/api/purchase-requests?role=seller", "seller", ""))
	assert.Len(t, selling, 1)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/purchase-requests?role=admin", "seller", "").Code)

	approvePath := "/api/purchase-requests/" + pr.ID.String() + "/approve"
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, approvePath, "buyer", "").Code)

	rec = s.do(t, http.MethodPost, approvePath, "seller", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approval := decode[service.Approval](t, rec)
	assert.Equal(t, models.RequestApproved, approval.Request.Status)
	assert.NotEmpty(t, approval.CheckoutURL)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, approvePath, "seller", "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/purchase-requests/"+pr.ID.String()+"/reject", "seller", "").Code)
}

func TestMarketplaces(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)
	s.connect(t, "owner")

	rec := s.do(t, http.MethodPost, "/api/marketplaces", "owner", `{"name":"Pottery Guild","description":"clay"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[models.Marketplace](t, rec)
	assert.Equal(t, "pottery-guild", m.Slug)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/marketplaces", "owner", `{"name":""}`).Code)

	rec = s.do(t, http.MethodGet, "/api/marketplaces/pottery-guild", "visitor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/marketplaces/none", "visitor", "").Code)

	membership := "/api/marketplaces/" + m.ID.String() + "/membership"
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, membership, "member", "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, membership, "member", "").Code)

	rec = s.do(t, http.MethodGet, "/api/marketplaces/pottery-guild", "visitor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[service.MarketplaceDetail](t, rec)
	require.Len(t, detail.Marketplace.Owners, 1)
	assert.Equal(t, "owner", detail.Marketplace.Owners[0].ID)
	require.Len(t, detail.Marketplace.Members, 1)
	assert.Equal(t, "member", detail.Marketplace.Members[0].ID)
	assert.NotContains(t, rec.Body.String(), "@example.com")
	assert.NotContains(t, rec.Body.String(), "email")
	assert.NotContains(t, rec.Body.String(), "stripe_account_id")
	assert.NotContains(t, rec.Body.String(), "acct_")

	mine := decode[[]models.Marketplace](t, s.do(t, http.MethodGet, "/api/marketplaces", "member", ""))
	assert.Len(t, mine, 1)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, membership, "owner", "").Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, membership, "member", "").Code)
}

func TestTags(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/tags", "maker", `{"name":"Glass"}`).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/tags", "maker", `{"name":"Glass"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/tags", "maker", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/tags", "maker", `{"name":"red,blue"}`).Code)

	got := decode[[]models.Tag](t, s.do(t, http.MethodGet, "/api/tags?q=gla", "maker", ""))
	require.Len(t, got, 1)
	assert.Equal(t, "Glass", got[0].Name)
}

func TestAccounts(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodGet, "/api/stripe/onboarding-link", "maker", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/stripe/connect", "maker", `{"email":"nope"}`).Code)

	rec := s.do(t, http.MethodPost, "/api/stripe/connect", "maker", "")
	require.Equal(t, http.StatusOK, rec.Code)
	conn := decode[service.Connection](t, rec)
	assert.NotEmpty(t, conn.AccountID)

	link := decode[map[string]string](t, s.do(t, http.MethodGet, "/api/stripe/onboarding-link", "maker", ""))
	assert.Equal(t, conn.OnboardingURL, link["url"])

	ins := decode[service.Insights](t, s.do(t, http.MethodGet, "/api/stripe/insights-summary", "maker", ""))
	assert.Equal(t, "0.00", ins.TotalRevenue)

	me := decode[service.Dashboard](t, s.do(t, http.MethodGet, "/api/me", "maker", ""))
	assert.Equal(t, "maker", me.User.ID)
	require.NotNil(t, me.User.Slug)

	s.createProduct(t, "maker", "Vase", 700, models.PaymentInstant)
	rec = s.do(t, http.MethodGet, "/api/users/"+*me.User.Slug, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[service.Profile](t, rec)
	assert.Len(t, profile.Listings, 1)
	assert.NotContains(t, rec.Body.String(), "maker@example.com")

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/stripe/disconnect", "maker", "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodGet, "/api/stripe/insights-summary", "maker", "").Code)
}

func signWebhook(t *testing.T, payload []byte) http.Header {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(testWebhookSecret, "whsec_"))
	require.NoError(t, err)

	id := "msg_test"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, key)
	_, _ = fmt.Fprintf(mac, "%s.%s.%s", id, ts, payload)

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", ts)
	h.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func TestIdentityWebhook(t *testing.T) {
	t.Parallel()
	s := newServer(t, 0)

	send := func(payload string, headers http.Header) int {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/identity", strings.NewReader(payload))
		for k, v := range headers {
			req.Header[k] = v
		}
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		return rec.Code
	}

	created := `{"type":"user.created","data":{"id":"user_2abc","primary_email_address_id":"e1","email_addresses":[{"id":"e1","email_address":"maker@example.com"}]}}`
	assert.Equal(t, http.StatusOK, send(created, signWebhook(t, []byte(created))))

	u, err := s.repo.GetUser(t.Context(), "user_2abc")
	require.NoError(t, err)
	assert.Equal(t, "maker@example.com", u.Email)

	forged := `{"type":"user.deleted","data":{"id":"user_2abc"}}`
	assert.Equal(t, http.StatusBadRequest, send(forged, signWebhook(t, []byte(created))))
	assert.Equal(t, http.StatusBadRequest, send(forged, nil))

	_, err = s.repo.GetUser(t.Context(), "user_2abc")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, send(forged, signWebhook(t, []byte(forged))))
	_, err = s.repo.GetUser(t.Context(), "user_2abc")
	assert.Error(t, err)
}
