package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
)

type notificationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	limit, err := queryInt(r, "limit", appnotification.DefaultLimit)
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	list, err := h.uc.ListNotifications.Execute(r.Context(), appnotification.ListInput{Skip: skip, Limit: limit})
	if err != nil {
		h.writeDomainError(w, r, err, "")
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, notificationResponse{
			ID:        n.ID,
			UserID:    n.UserID,
			OrderID:   n.OrderID,
			Message:   n.Message,
			Status:    n.Status,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validation(name + " must be an integer")
	}
	return n, nil
}
