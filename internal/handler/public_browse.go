// Package handler exposes HTTP handlers for both authenticated and public endpoints.
// This file defines handlers for the public browsing API.  These routes let
// anyone look at houses, queues and spot availability without logging in.
// Customer identities on spots are filtered from responses.

package handler

import (
    "net/http"
    "time"

    "github.com/jinzhu/copier"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/model"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// PublicHandler serves unauthenticated browsing.
type PublicHandler struct {
    Engine *allocation.Engine
}

func NewPublicHandler(engine *allocation.Engine) *PublicHandler {
    if engine == nil {
        panic("nil engine passed to NewPublicHandler")
    }
    return &PublicHandler{Engine: engine}
}

// PublicHouse is a house as exposed to guests.
type PublicHouse struct {
    Name              string        `json:"name"`
    Slug              string        `json:"slug"`
    Duration          uint32        `json:"duration"`
    BreakTimePerQueue uint32        `json:"break_time_per_queue"`
    Queues            []PublicQueue `json:"queues"`
}

// PublicQueue is a queue with its live statistics.
type PublicQueue struct {
    ID             string           `json:"id"`
    HouseName      string           `json:"house_name"`
    QueueNumber    uint32           `json:"queue_number"`
    MaxCustomers   uint32           `json:"max_customers"`
    QueueStartTime time.Time        `json:"queue_start_time"`
    QueueEndTime   time.Time        `json:"queue_end_time"`
    Stats          allocation.Stats `json:"stats"`
    Spots          []PublicSpot     `json:"spots,omitempty"`
}

// PublicSpot hides who holds a spot.
type PublicSpot struct {
    SpotNumber uint32           `json:"spot_number"`
    Status     model.SpotStatus `json:"status"`
}

func toPublicQueue(st allocation.QueueState) (PublicQueue, error) {
    var pq PublicQueue
    if err := copier.Copy(&pq, &st.Queue); err != nil {
        return pq, err
    }
    pq.Stats = st.Stats
    if st.Spots != nil {
        pq.Spots = make([]PublicSpot, 0, len(st.Spots))
        if err := copier.Copy(&pq.Spots, &st.Spots); err != nil {
            return pq, err
        }
    }
    return pq, nil
}

func toPublicHouse(hs allocation.HouseState) (PublicHouse, error) {
    var ph PublicHouse
    if err := copier.Copy(&ph, &hs.House); err != nil {
        return ph, err
    }
    ph.Queues = make([]PublicQueue, 0, len(hs.Queues))
    for _, st := range hs.Queues {
        pq, err := toPublicQueue(st)
        if err != nil {
            return ph, err
        }
        ph.Queues = append(ph.Queues, pq)
    }
    return ph, nil
}

// ListHouses handles GET /v1/houses.
func (h *PublicHandler) ListHouses(c echo.Context) error {
    houses, err := h.Engine.ListHouses(c.Request().Context())
    if err != nil {
        return fail(c, err)
    }
    out := make([]PublicHouse, 0, len(houses))
    for _, hs := range houses {
        ph, err := toPublicHouse(hs)
        if err != nil {
            return fail(c, err)
        }
        out = append(out, ph)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", out)
}

// GetHouse handles GET /v1/houses/:slug.
func (h *PublicHandler) GetHouse(c echo.Context) error {
    hs, err := h.Engine.GetHouse(c.Request().Context(), c.Param("slug"))
    if err != nil {
        return fail(c, err)
    }
    ph, err := toPublicHouse(*hs)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", ph)
}

// GetQueue handles GET /v1/queues/:id and includes the spot grid.
func (h *PublicHandler) GetQueue(c echo.Context) error {
    st, err := h.Engine.GetQueue(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    pq, err := toPublicQueue(*st)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", pq)
}
