package httppresentation

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appcart "github.com/iclalusta/e-commerce-microservice/internal/application/cart"
	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
)

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	c, err := h.uc.GetCart.Execute(r.Context(), userID)
	if err != nil && !errors.Is(err, domcart.ErrNotFound) {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userID, c))
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	if h.uc.AddCartItem == nil {
		http.NotFound(w, r)
		return
	}
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	userID := r.Header.Get(headerUserID)
	c, err := h.uc.AddCartItem.Execute(r.Context(), appcart.AddItemInput{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userID, c))
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	if h.uc.UpdateCartItem == nil {
		http.NotFound(w, r)
		return
	}
	var req cartQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	userID := r.Header.Get(headerUserID)
	c, err := h.uc.UpdateCartItem.Execute(r.Context(), appcart.UpdateItemInput{
		UserID:    userID,
		ProductID: chi.URLParam(r, "productId"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userID, c))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	if h.uc.RemoveCartItem == nil {
		http.NotFound(w, r)
		return
	}
	userID := r.Header.Get(headerUserID)
	c, err := h.uc.RemoveCartItem.Execute(r.Context(), appcart.UpdateItemInput{
		UserID:    userID,
		ProductID: chi.URLParam(r, "productId"),
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userID, c))
}
