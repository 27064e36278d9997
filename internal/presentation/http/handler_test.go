package httppresentation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	appcart "github.com/iclalusta/e-commerce-microservice/internal/application/cart"
	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
	apppayment "github.com/iclalusta/e-commerce-microservice/internal/application/payment"
	appproduct "github.com/iclalusta/e-commerce-microservice/internal/application/product"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/collaborator"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/id"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	infraobs "github.com/iclalusta/e-commerce-microservice/internal/infrastructure/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/observability/prometrics"
	httppresentation "github.com/iclalusta/e-commerce-microservice/internal/presentation/http"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type HandlerSuite struct {
	suite.Suite

	products  *memory.ProductRepository
	orders    *memory.OrderRepository
	payments  *apppayment.AuthorizePaymentUseCase
	publisher *recordingPublisher
	cartBus   *recordingPublisher
	notices   *appnotification.NotifyOrderCreatedUseCase
	registry  *prometheus.Registry
	server    *httptest.Server
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	pen, err := domproduct.New("p1", "pen", decimal.RequireFromString("2.50"), 10)
	s.Require().NoError(err)

	s.registry = prometheus.NewRegistry()
	tel := infraobs.New(infraobs.WithRegistry(prometrics.NewWithRegisterer(s.registry, "", "")))

	s.products = memory.NewProductRepository(pen)
	s.orders = memory.NewOrderRepository()
	s.publisher = &recordingPublisher{}
	s.cartBus = &recordingPublisher{}
	s.payments = apppayment.NewAuthorizePaymentUseCase(1, tel)
	carts := memory.NewCartRepository()
	notifications := memory.NewNotificationRepository()
	s.notices = appnotification.NewNotifyOrderCreatedUseCase(notifications, tel)

	h := httppresentation.NewHandler(httppresentation.UseCases{
		CreateOrder: apporder.NewCreateOrderUseCase(s.orders, collaborator.NewLocalCarts(carts), s.payments,
			s.publisher, id.NewUUIDGenerator(), tel),
		GetOrder:    apporder.NewGetOrderUseCase(s.orders, tel),
		ListOrders:  apporder.NewListOrdersUseCase(s.orders, tel),
		UpdateOrder: apporder.NewUpdateOrderUseCase(s.orders, tel),
		GetCart:     appcart.NewGetCartUseCase(carts, tel),
		AddCartItem: appcart.NewAddItemUseCase(carts, s.products, tel,
			appcart.WithItemAddedPublisher(s.cartBus)),
		UpdateCartItem:    appcart.NewUpdateItemUseCase(carts, s.products, tel),
		RemoveCartItem:    appcart.NewRemoveItemUseCase(carts, tel),
		GetProduct:        appproduct.NewGetProductUseCase(s.products, tel),
		ListProducts:      appproduct.NewListProductsUseCase(s.products, tel),
		CreateProduct:     appproduct.NewCreateProductUseCase(s.products, id.NewUUIDGenerator(), tel),
		UpdateProduct:     appproduct.NewUpdateProductUseCase(s.products, s.publisher, tel),
		DeleteProduct:     appproduct.NewDeleteProductUseCase(s.products, s.publisher, tel),
		IncreaseStock:     appproduct.NewIncreaseStockUseCase(s.products, s.publisher, tel),
		AuthorizePayment:  s.payments,
		ListNotifications: appnotification.NewListNotificationsUseCase(notifications, tel),
	}, tel)
	s.server = httptest.NewServer(h.Router())
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) do(method, path, user, body string, headers ...string) (*http.Response, map[string]any) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw any
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&raw))
		if m, ok := raw.(map[string]any); ok {
			out = m
		} else {
			out = map[string]any{"list": raw}
		}
	}
	return resp, out
}

func (s *HandlerSuite) addToCart(user, productID string, qty int) {
	resp, _ := s.do(http.MethodPost, "/cart/items", user,
		`{"productId":"`+productID+`","quantity":`+jsonInt(qty)+`}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (s *HandlerSuite) TestHealth() {
	resp, body := s.do(http.MethodGet, "/health", "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])
	s.NotEmpty(resp.Header.Get("X-Request-ID"))
}

func (s *HandlerSuite) TestRequestIDIsEchoed() {
	resp, _ := s.do(http.MethodGet, "/health", "", "", "X-Request-ID", "req-123")
	s.Equal("req-123", resp.Header.Get("X-Request-ID"))
}

func (s *HandlerSuite) TestCheckoutFlow() {
	s.addToCart("u1", "p1", 2)

	resp, body := s.do(http.MethodPost, "/orders", "u1", `{"shippingAddress":"1 Main St"}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("PROCESSING", body["status"])
	s.Equal("u1", body["userId"])
	orderID, _ := body["id"].(string)
	s.Require().NotEmpty(orderID)
	s.Equal("/orders/"+orderID, resp.Header.Get("Location"))
	s.Equal([]string{"order.created"}, s.publisher.topics())

	resp, body = s.do(http.MethodGet, "/orders/"+orderID, "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(orderID, body["id"])

	resp, body = s.do(http.MethodGet, "/orders", "u1", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Len(body["list"], 1)

	resp, body = s.do(http.MethodGet, "/orders/all", "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Len(body["list"], 1)
}

func (s *HandlerSuite) TestIdempotencyKeyReplays() {
	s.addToCart("u1", "p1", 1)

	resp, first := s.do(http.MethodPost, "/orders", "u1", `{"shippingAddress":"x"}`, "Idempotency-Key", "k1")
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, second := s.do(http.MethodPost, "/orders", "u1", `{"shippingAddress":"x"}`, "Idempotency-Key", "k1")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(first["id"], second["id"])
	s.Len(s.publisher.topics(), 1)
}

func (s *HandlerSuite) TestEmptyCartIs422() {
	resp, body := s.do(http.MethodPost, "/orders", "u2", `{"shippingAddress":"x"}`)
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	s.Equal("EMPTY_CART", body["code"])
	s.Empty(s.publisher.topics())
}

func (s *HandlerSuite) TestDeclinedPaymentIs402WithOrderID() {
	s.payments.SetSuccessRate(0)
	s.addToCart("u1", "p1", 1)

	resp, body := s.do(http.MethodPost, "/orders", "u1", `{"shippingAddress":"x"}`)
	s.Equal(http.StatusPaymentRequired, resp.StatusCode)
	s.Equal("PAYMENT_DECLINED", body["code"])
	orderID, _ := body["orderId"].(string)
	s.Require().NotEmpty(orderID)

	o, err := s.orders.FindByID(context.Background(), orderID)
	s.Require().NoError(err)
	s.Equal("FAILED", string(o.Status))
	s.Empty(s.publisher.topics())
}

func (s *HandlerSuite) TestValidationErrors() {
	resp, body := s.do(http.MethodPost, "/orders", "u1", `{"shippingAddress":""}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("VALIDATION_ERROR", body["code"])

	resp, _ = s.do(http.MethodPost, "/orders", "u1", `{"address":"x"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/orders", "", `{"shippingAddress":"x"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerSuite) TestUnknownOrderIs404AndLabelledByRoute() {
	resp, body := s.do(http.MethodGet, "/orders/missing", "", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("NOT_FOUND", body["code"])

	expected := `
# HELP http_requests_total HTTP requests served.
# TYPE http_requests_total counter
http_requests_total{method="GET",route="/orders/{id}",status="404"} 1
`
	s.NoError(testutil.GatherAndCompare(s.registry, strings.NewReader(expected), "http_requests_total"))
}

func (s *HandlerSuite) TestUpdateOrderTransition() {
	s.addToCart("u1", "p1", 1)
	_, created := s.do(http.MethodPost, "/orders", "u1", `{"shippingAddress":"x"}`)
	orderID, _ := created["id"].(string)

	resp, body := s.do(http.MethodPut, "/orders/"+orderID, "", `{"status":"COMPLETED","shippingAddress":"y"}`)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("COMPLETED", body["status"])
	s.Equal("y", body["shippingAddress"])

	resp, _ = s.do(http.MethodPut, "/orders/"+orderID, "", `{"status":"PENDING"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerSuite) TestManualProcessingIsRejected() {
	o, err := domorder.New("o-pending", "u1", "x", []domorder.Item{
		{ProductID: "p1", Quantity: 1, PriceAtOrderTime: decimal.RequireFromString("2.50")},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.orders.Insert(context.Background(), o))

	resp, body := s.do(http.MethodPut, "/orders/o-pending", "", `{"status":"PROCESSING"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("VALIDATION_ERROR", body["code"])

	resp, body = s.do(http.MethodPut, "/orders/o-pending", "", `{"status":"CANCELLED"}`)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("CANCELLED", body["status"])
}

func (s *HandlerSuite) TestCartEndpoints() {
	resp, body := s.do(http.MethodGet, "/cart", "u3", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Empty(body["items"])

	s.addToCart("u3", "p1", 2)

	resp, body = s.do(http.MethodPut, "/cart/items/p1", "u3", `{"quantity":5}`)
	s.Equal(http.StatusOK, resp.StatusCode)
	items, _ := body["items"].([]any)
	s.Require().Len(items, 1)
	s.EqualValues(5, items[0].(map[string]any)["quantity"])

	resp, _ = s.do(http.MethodPut, "/cart/items/p1", "u3", `{"quantity":50}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(http.MethodDelete, "/cart/items/p1", "u3", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Empty(body["items"])
}

func (s *HandlerSuite) TestUpdateProductPublishes() {
	resp, body := s.do(http.MethodPut, "/products/p1", "", `{"price":"3.75","stock":4}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.EqualValues(4, body["stock"])
	s.Equal([]string{"product.updated"}, s.publisher.topics())

	resp, body = s.do(http.MethodGet, "/products/p1", "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.EqualValues(2, body["version"])

	resp, _ = s.do(http.MethodGet, "/products/nope", "", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlerSuite) TestProductCatalogEndpoints() {
	resp, body := s.do(http.MethodPost, "/products", "", `{"id":"p2","name":"ink","price":"1.10","stock":3}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("/products/p2", resp.Header.Get("Location"))
	s.EqualValues(1, body["version"])

	resp, _ = s.do(http.MethodPost, "/products", "", `{"id":"p2","name":"ink","price":"1.10","stock":3}`)
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/products", "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Len(body["list"], 2)
	s.Empty(s.publisher.topics())

	resp, body = s.do(http.MethodPost, "/products/p2/increase-stock", "", `{"quantity":4}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.EqualValues(7, body["stock"])

	resp, body = s.do(http.MethodPost, "/products/p2/increase-stock", "", `{"quantity":0}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("VALIDATION_ERROR", body["code"])

	resp, _ = s.do(http.MethodDelete, "/products/p2", "", "")
	s.Equal(http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/products/p2", "", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp, _ = s.do(http.MethodDelete, "/products/p2", "", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)

	s.Equal([]string{"product.updated", "product.updated"}, s.publisher.topics())
}

func (s *HandlerSuite) TestAddToCartAnnouncesItemAdded() {
	s.addToCart("u4", "p1", 2)
	s.Equal([]string{"cart.item.added"}, s.cartBus.topics())
}

func (s *HandlerSuite) TestNotificationsListing() {
	resp, body := s.do(http.MethodGet, "/notifications", "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Empty(body["list"])

	for _, orderID := range []string{"o1", "o2"} {
		_, err := s.notices.Execute(context.Background(), domorder.OrderCreatedEvent{OrderID: orderID, UserID: "u1"})
		s.Require().NoError(err)
	}

	resp, body = s.do(http.MethodGet, "/notifications/?skip=1&limit=100", "", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	list, _ := body["list"].([]any)
	s.Require().Len(list, 1)
	s.Equal("o2", list[0].(map[string]any)["orderId"])
	s.Equal("SENT", list[0].(map[string]any)["status"])

	resp, _ = s.do(http.MethodGet, "/notifications?limit=ten", "", "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerSuite) TestAuthorizePayment() {
	resp, body := s.do(http.MethodPost, "/payments", "", `{"orderId":"o1","amount":"12.00"}`)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["success"])

	resp, _ = s.do(http.MethodPost, "/payments", "", `{"amount":"1"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestUnmountedRoutesAre404(t *testing.T) {
	srv := httptest.NewServer(httppresentation.NewHandler(httppresentation.UseCases{}, nil).Router())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/orders", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
