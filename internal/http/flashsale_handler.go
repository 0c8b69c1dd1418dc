package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/fjod/storefront-gateway/internal/flashsale"
	"github.com/rs/zerolog"
)

type FlashSaleBackend interface {
	ListFlashSales(ctx context.Context, activeOnly bool) ([]domain.FlashSale, error)
	GetFlashSale(ctx context.Context, id int64) (*domain.FlashSale, error)
}

type FlashSaleHandler struct {
	sales    FlashSaleBackend
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewFlashSaleHandler(sales FlashSaleBackend, timeout time.Duration) *FlashSaleHandler {
	return &FlashSaleHandler{
		sales:    sales,
		timeout:  timeout,
		interval: time.Second,
		now:      time.Now,
	}
}

type FlashSaleResponseDTO struct {
	domain.FlashSale
	Countdown flashsale.Countdown `json:"countdown"`
}

func (h *FlashSaleHandler) view(sale domain.FlashSale) FlashSaleResponseDTO {
	return FlashSaleResponseDTO{FlashSale: sale, Countdown: flashsale.ForSale(h.now(), &sale)}
}

func (h *FlashSaleHandler) ListFlashSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sales, err := h.sales.ListFlashSales(ctx, r.URL.Query().Get("active") == "true")
	if err != nil {
		handleBackendError(w, r, err)
		return
	}

	resp := make([]FlashSaleResponseDTO, 0, len(sales))
	for _, s := range sales {
		resp = append(resp, h.view(s))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *FlashSaleHandler) GetFlashSale(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(r, "sale_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_sale_id", "sale_id must be a positive integer")
		return
	}

	sale, err := h.sales.GetFlashSale(ctx, id)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(*sale))
}

// StreamCountdown pushes one countdown event per second until the sale has
// ended. The ticker stops when the client goes away.
//
// An upcoming sale counts down to its start and then, once active, to its
// end, so the display jumps back up at the start. That moment is announced by
// a "phase" event carrying the first countdown of the new phase; between
// phase events the countdown never increases.
func (h *FlashSaleHandler) StreamCountdown(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sale_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_sale_id", "sale_id must be a positive integer")
		return
	}

	fetchCtx, cancel := context.WithTimeout(r.Context(), h.timeout)
	sale, err := h.sales.GetFlashSale(fetchCtx, id)
	cancel()
	if err != nil {
		handleBackendError(w, r, err)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("open countdown stream failed")
		return
	}
	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	var phase flashsale.Phase
	for c := range flashsale.Stream(ctx, sale, h.interval, h.now) {
		if phase == flashsale.PhaseUpcoming && c.Phase == flashsale.PhaseActive {
			if err := stream.send("phase", c); err != nil {
				return
			}
		}
		phase = c.Phase
		if err := stream.send("countdown", c); err != nil {
			return
		}
	}
}
