package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	appcart "github.com/iclalusta/e-commerce-microservice/internal/application/cart"
	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
	apppayment "github.com/iclalusta/e-commerce-microservice/internal/application/payment"
	appproduct "github.com/iclalusta/e-commerce-microservice/internal/application/product"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerUserID         = "X-User-Id"
	headerIdempotencyKey = "Idempotency-Key"
	maxRequestBody       = 1 << 20
)

// UseCases groups what the HTTP surface exposes. A nil group leaves its routes unmounted.
type UseCases struct {
	CreateOrder *apporder.CreateOrderUseCase
	GetOrder    *apporder.GetOrderUseCase
	ListOrders  *apporder.ListOrdersUseCase
	UpdateOrder *apporder.UpdateOrderUseCase

	GetCart        *appcart.GetCartUseCase
	AddCartItem    *appcart.AddItemUseCase
	UpdateCartItem *appcart.UpdateItemUseCase
	RemoveCartItem *appcart.RemoveItemUseCase

	GetProduct    *appproduct.GetProductUseCase
	ListProducts  *appproduct.ListProductsUseCase
	CreateProduct *appproduct.CreateProductUseCase
	UpdateProduct *appproduct.UpdateProductUseCase
	DeleteProduct *appproduct.DeleteProductUseCase
	IncreaseStock *appproduct.IncreaseStockUseCase

	AuthorizePayment *apppayment.AuthorizePaymentUseCase

	ListNotifications *appnotification.ListNotificationsUseCase
}

type Handler struct {
	uc      UseCases
	log     observability.Logger
	tel     observability.Observability
	metrics http.Handler
}

type Option func(*Handler)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

func NewHandler(uc UseCases, tel observability.Observability, opts ...Option) *Handler {
	tel = observability.Resolve(tel)
	h := &Handler{
		uc:  uc,
		log: tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel: tel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router wires each route with middlewares:
// Recoverer → Trace → request logger + HTTP metrics → Access log → Handler
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.withTrace)
	r.Use(ObservabilityMiddleware(h.log, func(r *http.Request) string {
		return r.Header.Get(headerRequestID)
	}, h.tel))
	r.Use(h.withAccessLog)

	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	if h.uc.CreateOrder != nil {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.handleCreateOrder)
			r.Get("/", h.handleListOrders)
			r.Get("/all", h.handleListAllOrders)
			r.Get("/{id}", h.handleGetOrder)
			r.Put("/{id}", h.handleUpdateOrder)
		})
	}
	if h.uc.GetCart != nil {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.handleGetCart)
			r.Post("/items", h.handleAddCartItem)
			r.Put("/items/{productId}", h.handleUpdateCartItem)
			r.Delete("/items/{productId}", h.handleRemoveCartItem)
		})
	}
	if h.uc.GetProduct != nil {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.handleListProducts)
			r.Post("/", h.handleCreateProduct)
			r.Get("/{id}", h.handleGetProduct)
			r.Put("/{id}", h.handleUpdateProduct)
			r.Delete("/{id}", h.handleDeleteProduct)
			r.Post("/{id}/increase-stock", h.handleIncreaseStock)
		})
	}
	if h.uc.AuthorizePayment != nil {
		r.Post("/payments", h.handleAuthorizePayment)
	}
	if h.uc.ListNotifications != nil {
		r.Get("/notifications", h.handleListNotifications)
		r.Get("/notifications/", h.handleListNotifications)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errs.Validation(fmt.Sprintf("malformed request body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	OrderID string `json:"orderId,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, errs.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, orderID string) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: errs.Code(err), OrderID: orderID}
	if status == http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error", observability.Err(err))
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}
