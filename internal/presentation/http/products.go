package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	appproduct "github.com/iclalusta/e-commerce-microservice/internal/application/product"
	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
)

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.uc.GetProduct.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	if h.uc.ListProducts == nil {
		http.NotFound(w, r)
		return
	}
	products, err := h.uc.ListProducts.Execute(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	if h.uc.CreateProduct == nil {
		http.NotFound(w, r)
		return
	}
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	p, err := h.uc.CreateProduct.Execute(r.Context(), appproduct.CreateProductInput{
		ID:    req.ID,
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	w.Header().Set("Location", "/products/"+p.ID)
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	if h.uc.UpdateProduct == nil {
		http.NotFound(w, r)
		return
	}
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	p, err := h.uc.UpdateProduct.Execute(r.Context(), appproduct.UpdateProductInput{
		ID:    chi.URLParam(r, "id"),
		Patch: domproduct.Patch{Name: req.Name, Price: req.Price, Stock: req.Stock},
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if h.uc.DeleteProduct == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.uc.DeleteProduct.Execute(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIncreaseStock(w http.ResponseWriter, r *http.Request) {
	if h.uc.IncreaseStock == nil {
		http.NotFound(w, r)
		return
	}
	var req increaseStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	p, err := h.uc.IncreaseStock.Execute(r.Context(), appproduct.IncreaseStockInput{
		ID:       chi.URLParam(r, "id"),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleAuthorizePayment(w http.ResponseWriter, r *http.Request) {
	var req pay.Request
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	res, err := h.uc.AuthorizePayment.Execute(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err, req.OrderID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
