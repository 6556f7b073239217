package handler

import (
    "errors"
    "net/http"

    "github.com/jinzhu/copier"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/middleware"
    "github.com/iliyamo/haunted-house-queue/internal/model"
    "github.com/iliyamo/haunted-house-queue/internal/repository"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// CustomerHandler runs queue operations on behalf of the authenticated
// customer.  All methods assume JWTAuth and RequireRole ran first.
type CustomerHandler struct {
    Engine *allocation.Engine
    Users  UserStore
}

func NewCustomerHandler(engine *allocation.Engine, users UserStore) *CustomerHandler {
    if engine == nil || users == nil {
        panic("nil dependency passed to NewCustomerHandler")
    }
    return &CustomerHandler{Engine: engine, Users: users}
}

type createReservationReq struct {
    MaxSpots int `json:"max_spots" validate:"required"`
}

type joinReservationReq struct {
    Code string `json:"code" validate:"required"`
}

// ReservationView is a reservation as shown to customers.  Members are
// listed by spot only.
type ReservationView struct {
    Reservation        model.Reservation `json:"reservation"`
    Queue              model.Queue       `json:"queue"`
    Spots              []PublicSpot      `json:"spots"`
    RepresentativeName string            `json:"representative_name"`
}

func toReservationView(d *allocation.ReservationDetail) (ReservationView, error) {
    v := ReservationView{Reservation: d.Reservation, Queue: d.Queue, RepresentativeName: d.Representative.Name}
    v.Spots = make([]PublicSpot, 0, len(d.Spots))
    err := copier.Copy(&v.Spots, &d.Spots)
    return v, err
}

// customer builds the engine identity of the caller from the token and
// the stored profile.  It writes the error response itself and returns
// ok=false when the caller cannot act as a customer.
func (h *CustomerHandler) customer(c echo.Context) (allocation.CustomerData, bool, error) {
    uid, ok := middleware.UserID(c)
    if !ok {
        return allocation.CustomerData{}, false, unauthorized(c, "unauthorized")
    }
    u, err := h.Users.GetByID(c.Request().Context(), uid)
    if errors.Is(err, repository.ErrNotFound) {
        return allocation.CustomerData{}, false, unauthorized(c, "unauthorized")
    }
    if err != nil {
        return allocation.CustomerData{}, false, fail(c, err)
    }
    studentID, ok := middleware.StudentID(c)
    if !ok && u.StudentID != nil {
        studentID, ok = *u.StudentID, true
    }
    if !ok {
        return allocation.CustomerData{}, false, utils.ErrorResponse(c, http.StatusForbidden,
            string(allocation.CodeUnauthorized), "account has no student profile")
    }
    data := allocation.CustomerData{StudentID: studentID, Name: u.Name, Email: u.Email}
    if u.Homeroom != nil {
        data.Homeroom = *u.Homeroom
    }
    if u.TicketType != nil {
        data.TicketType = *u.TicketType
    }
    return data, true, nil
}

// JoinQueue handles POST /v1/queues/:id/join.
func (h *CustomerHandler) JoinQueue(c echo.Context) error {
    data, ok, err := h.customer(c)
    if !ok {
        return err
    }
    p, err := h.Engine.JoinQueue(c.Request().Context(), c.Param("id"), data)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusCreated, "joined queue", p)
}

// CreateReservation handles POST /v1/queues/:id/reservations.
func (h *CustomerHandler) CreateReservation(c echo.Context) error {
    data, ok, err := h.customer(c)
    if !ok {
        return err
    }
    var req createReservationReq
    if msg := bind(c, &req); msg != "" {
        return badRequest(c, msg)
    }
    d, err := h.Engine.CreateReservation(c.Request().Context(), c.Param("id"), req.MaxSpots, data)
    if err != nil {
        return fail(c, err)
    }
    v, err := toReservationView(d)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusCreated, "reservation created", v)
}

// JoinReservation handles POST /v1/reservations/join.
func (h *CustomerHandler) JoinReservation(c echo.Context) error {
    data, ok, err := h.customer(c)
    if !ok {
        return err
    }
    var req joinReservationReq
    if msg := bind(c, &req); msg != "" {
        return badRequest(c, msg)
    }
    p, err := h.Engine.JoinReservation(c.Request().Context(), req.Code, data)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "joined reservation", p)
}

// LeaveQueue handles DELETE /v1/me/spot.
func (h *CustomerHandler) LeaveQueue(c echo.Context) error {
    data, ok, err := h.customer(c)
    if !ok {
        return err
    }
    out, err := h.Engine.LeaveQueue(c.Request().Context(), data.StudentID)
    if err != nil {
        return fail(c, err)
    }
    msg := "left queue"
    if out.Cancelled {
        msg = "left queue, reservation cancelled"
    }
    return utils.SuccessResponse(c, http.StatusOK, msg, out)
}

// MySpot handles GET /v1/me/spot.
func (h *CustomerHandler) MySpot(c echo.Context) error {
    data, ok, err := h.customer(c)
    if !ok {
        return err
    }
    p, err := h.Engine.CurrentSpot(c.Request().Context(), data.StudentID)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", p)
}

// GetReservation handles GET /v1/reservations/:code.
func (h *CustomerHandler) GetReservation(c echo.Context) error {
    d, err := h.Engine.GetReservation(c.Request().Context(), c.Param("code"))
    if err != nil {
        return fail(c, err)
    }
    v, err := toReservationView(d)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", v)
}
