package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
)

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}

	res, err := h.uc.CreateOrder.Execute(r.Context(), apporder.CreateOrderInput{
		UserID:          r.Header.Get(headerUserID),
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		orderID := ""
		if res != nil && res.Order != nil {
			orderID = res.Order.ID
		}
		h.writeDomainError(w, r, err, orderID)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/orders/"+res.Order.ID)
	writeJSON(w, status, toOrderResponse(res.Order))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.uc.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{UserID: r.Header.Get(headerUserID)})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.uc.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{All: true})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.GetOrder.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	o, err := h.uc.UpdateOrder.Execute(r.Context(), apporder.UpdateOrderInput{
		ID:              chi.URLParam(r, "id"),
		ShippingAddress: req.ShippingAddress,
		Status:          req.Status,
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
