package router

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/allocation/memstore"
    "github.com/iliyamo/haunted-house-queue/internal/config"
    "github.com/iliyamo/haunted-house-queue/internal/handler"
    "github.com/iliyamo/haunted-house-queue/internal/model"
    "github.com/iliyamo/haunted-house-queue/internal/repository"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

const secret = "test-secret"

type fakeUsers struct {
    mu   sync.Mutex
    byID map[uint64]*model.User
}

func (f *fakeUsers) Create(_ context.Context, u *model.User, password string, cost int) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, cur := range f.byID {
        if cur.Email == u.Email {
            return repository.ErrEmailExists
        }
        if u.StudentID != nil && cur.StudentID != nil && *cur.StudentID == *u.StudentID {
            return repository.ErrStudentIDExists
        }
    }
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return err
    }
    u.ID = uint64(len(f.byID) + 1)
    u.PasswordHash = hash
    u.IsActive = true
    cp := *u
    f.byID[u.ID] = &cp
    return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, u := range f.byID {
        if u.Email == email {
            cp := *u
            return &cp, nil
        }
    }
    return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if u, ok := f.byID[id]; ok {
        cp := *u
        return &cp, nil
    }
    return nil, repository.ErrNotFound
}

type fakeTokens struct {
    mu     sync.Mutex
    owner  map[string]uint64
    revoke map[string]bool
}

func (f *fakeTokens) StoreRefresh(_ context.Context, userID uint64, hash string, _ time.Time) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.owner[hash] = userID
    return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string, _ time.Time) (uint64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    id, ok := f.owner[hash]
    if !ok || f.revoke[hash] {
        return 0, repository.ErrTokenInvalid
    }
    return id, nil
}

func (f *fakeTokens) RevokeByHash(_ context.Context, hash string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if _, ok := f.owner[hash]; !ok || f.revoke[hash] {
        return repository.ErrTokenInvalid
    }
    f.revoke[hash] = true
    return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for h, id := range f.owner {
        if id == userID {
            f.revoke[h] = true
        }
    }
    return nil
}

type envelope struct {
    Success bool            `json:"success"`
    Message string          `json:"message"`
    Code    string          `json:"code"`
    Data    json.RawMessage `json:"data"`
}

type server struct {
    t     *testing.T
    e     *echo.Echo
    users *fakeUsers
    admin string
}

func newServer(t *testing.T) *server {
    t.Helper()
    log, _ := test.NewNullLogger()
    engine := allocation.NewEngine(memstore.New(), allocation.WithLogger(log))
    users := &fakeUsers{byID: map[uint64]*model.User{}}
    tokens := &fakeTokens{owner: map[string]uint64{}, revoke: map[string]bool{}}
    cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}

    admin := &model.User{Email: "boss@school.test", Role: model.RoleAdmin, Name: "Boss"}
    require.NoError(t, users.Create(context.Background(), admin, "boss-password", 4))
    tok, err := utils.NewAccessToken(secret, admin.ID, model.RoleAdmin, "", 15)
    require.NoError(t, err)

    e := echo.New()
    RegisterRoutes(e, nil)
    RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), secret)
    RegisterPublic(e, handler.NewPublicHandler(engine))
    RegisterCustomer(e, handler.NewCustomerHandler(engine, users), secret)
    RegisterAdmin(e, handler.NewAdminHandler(engine), secret)
    return &server{t: t, e: e, users: users, admin: tok.Token}
}

func (s *server) do(method, path, token string, body any) (int, envelope) {
    s.t.Helper()
    var buf bytes.Buffer
    if body != nil {
        require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
    }
    req := httptest.NewRequest(method, path, &buf)
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    var env envelope
    if rec.Body.Len() > 0 {
        require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
    }
    return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
    t.Helper()
    var v T
    require.NoError(t, json.Unmarshal(raw, &v), string(raw))
    return v
}

type authData struct {
    Access struct {
        Token string `json:"token"`
    } `json:"access"`
    Refresh struct {
        Token string `json:"token"`
    } `json:"refresh"`
}

func (s *server) register(studentID, email string) authData {
    s.t.Helper()
    code, env := s.do(http.MethodPost, "/v1/auth/register", "", echo.Map{
        "email": email, "password": "password-123", "student_id": studentID,
        "name": "Student " + studentID, "homeroom": "7B", "ticket_type": "standard",
    })
    require.Equal(s.t, http.StatusCreated, code, env.Message)
    return decode[authData](s.t, env.Data)
}

// setupQueue creates a house and a queue with n spots and returns the queue id.
func (s *server) setupQueue(n int) string {
    s.t.Helper()
    code, env := s.do(http.MethodPost, "/v1/admin/houses", s.admin, echo.Map{
        "name": "Crypt of Echoes", "duration": 20, "break_time_per_queue": 5,
    })
    require.Equal(s.t, http.StatusCreated, code, env.Message)

    start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
    code, env = s.do(http.MethodPost, "/v1/admin/houses/crypt-of-echoes/queues", s.admin, echo.Map{
        "queue_number": 1, "max_customers": n,
        "queue_start_time": start, "queue_end_time": start.Add(30 * time.Minute),
    })
    require.Equal(s.t, http.StatusCreated, code, env.Message)
    return decode[model.Queue](s.t, env.Data).ID
}

func TestHealth(t *testing.T) {
    s := newServer(t)
    req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReservationFlow(t *testing.T) {
    s := newServer(t)
    queueID := s.setupQueue(4)
    rep := s.register("S001", "s1@school.test")
    member := s.register("S002", "s2@school.test")

    code, env := s.do(http.MethodPost, "/v1/queues/"+queueID+"/reservations", rep.Access.Token, echo.Map{"max_spots": 2})
    require.Equal(t, http.StatusCreated, code, env.Message)
    view := decode[handler.ReservationView](t, env.Data)
    assert.Len(t, view.Reservation.Code, 6)
    assert.Len(t, view.Spots, 2)

    code, env = s.do(http.MethodPost, "/v1/reservations/join", member.Access.Token, echo.Map{"code": view.Reservation.Code})
    require.Equal(t, http.StatusOK, code, env.Message)

    code, env = s.do(http.MethodPost, "/v1/reservations/join", member.Access.Token, echo.Map{"code": view.Reservation.Code})
    assert.Equal(t, http.StatusConflict, code)
    assert.Equal(t, "ALREADY_IN_QUEUE", env.Code)

    code, env = s.do(http.MethodGet, "/v1/queues/"+queueID, "", nil)
    require.Equal(t, http.StatusOK, code)
    pq := decode[handler.PublicQueue](t, env.Data)
    assert.Equal(t, 2, pq.Stats.OccupiedSpots)
    assert.Zero(t, pq.Stats.ReservedSpots)
    assert.Equal(t, 2, pq.Stats.AvailableSpots)
    assert.NotContains(t, string(env.Data), "S001")

    // The filled group was finalised on the last join.
    code, env = s.do(http.MethodGet, "/v1/me/spot", member.Access.Token, nil)
    require.Equal(t, http.StatusOK, code)
    placement := decode[allocation.Placement](t, env.Data)
    assert.Nil(t, placement.Reservation)
    assert.Equal(t, model.SpotOccupied, placement.Spot.Status)

    code, env = s.do(http.MethodGet, "/v1/reservations/"+view.Reservation.Code, member.Access.Token, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Contains(t, string(env.Data), `"completed"`)

    code, env = s.do(http.MethodPost, "/v1/admin/reconcile", s.admin, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Zero(t, decode[allocation.SweepResult](t, env.Data).Count())

    code, env = s.do(http.MethodDelete, "/v1/me/spot", rep.Access.Token, nil)
    require.Equal(t, http.StatusOK, code)
    assert.False(t, decode[allocation.LeaveResult](t, env.Data).Cancelled)
}

func TestRepresentativeLeaveCancels(t *testing.T) {
    s := newServer(t)
    queueID := s.setupQueue(3)
    rep := s.register("S001", "s1@school.test")

    code, env := s.do(http.MethodPost, "/v1/queues/"+queueID+"/reservations", rep.Access.Token, echo.Map{"max_spots": 3})
    require.Equal(t, http.StatusCreated, code, env.Message)

    code, env = s.do(http.MethodDelete, "/v1/me/spot", rep.Access.Token, nil)
    require.Equal(t, http.StatusOK, code)
    assert.True(t, decode[allocation.LeaveResult](t, env.Data).Cancelled)

    code, env = s.do(http.MethodGet, "/v1/me/spot", rep.Access.Token, nil)
    assert.Equal(t, http.StatusNotFound, code)
    assert.Equal(t, "NOT_IN_QUEUE", env.Code)
}

func TestJoinQueueRejections(t *testing.T) {
    s := newServer(t)
    queueID := s.setupQueue(1)
    first := s.register("S001", "s1@school.test")
    second := s.register("S002", "s2@school.test")

    code, _ := s.do(http.MethodPost, "/v1/queues/"+queueID+"/join", first.Access.Token, nil)
    require.Equal(t, http.StatusCreated, code)

    code, env := s.do(http.MethodPost, "/v1/queues/"+queueID+"/join", second.Access.Token, nil)
    assert.Equal(t, http.StatusConflict, code)
    assert.Equal(t, "NO_AVAILABLE_SPOTS", env.Code)

    code, env = s.do(http.MethodPost, "/v1/queues/missing/join", second.Access.Token, nil)
    assert.Equal(t, http.StatusNotFound, code)
    assert.Equal(t, "NOT_FOUND", env.Code)

    code, env = s.do(http.MethodPost, "/v1/reservations/join", second.Access.Token, echo.Map{"code": "ZZZZZZ"})
    assert.Equal(t, http.StatusNotFound, code)
    assert.Equal(t, "INVALID_RESERVATION_CODE", env.Code)

    code, env = s.do(http.MethodPost, "/v1/queues/"+queueID+"/reservations", second.Access.Token, echo.Map{"max_spots": 11})
    assert.Equal(t, http.StatusBadRequest, code)
    assert.Equal(t, "INVALID_INPUT", env.Code)
}

func TestAccessControl(t *testing.T) {
    s := newServer(t)
    customer := s.register("S001", "s1@school.test")

    code, env := s.do(http.MethodPost, "/v1/queues/x/join", "", nil)
    assert.Equal(t, http.StatusUnauthorized, code)
    assert.Equal(t, "UNAUTHORIZED", env.Code)

    code, _ = s.do(http.MethodPost, "/v1/admin/houses", customer.Access.Token, echo.Map{"name": "X", "duration": 5})
    assert.Equal(t, http.StatusForbidden, code)

    code, _ = s.do(http.MethodPost, "/v1/queues/x/join", s.admin, nil)
    assert.Equal(t, http.StatusForbidden, code)

    code, _ = s.do(http.MethodGet, "/v1/houses", "", nil)
    assert.Equal(t, http.StatusOK, code)
}

func TestAdminManagement(t *testing.T) {
    s := newServer(t)
    queueID := s.setupQueue(2)
    cust := s.register("S001", "s1@school.test")

    code, env := s.do(http.MethodPost, "/v1/admin/houses", s.admin, echo.Map{"name": "Crypt of Echoes", "duration": 5})
    assert.Equal(t, http.StatusConflict, code)
    assert.Equal(t, "CONFLICT", env.Code)

    code, _ = s.do(http.MethodPatch, "/v1/admin/queues/"+queueID, s.admin, echo.Map{"max_customers": 5})
    require.Equal(t, http.StatusOK, code)
    code, env = s.do(http.MethodGet, "/v1/houses/crypt-of-echoes", "", nil)
    require.Equal(t, http.StatusOK, code)
    house := decode[handler.PublicHouse](t, env.Data)
    require.Len(t, house.Queues, 1)
    assert.Equal(t, 5, house.Queues[0].Stats.TotalSpots)

    code, _ = s.do(http.MethodPost, "/v1/queues/"+queueID+"/join", cust.Access.Token, nil)
    require.Equal(t, http.StatusCreated, code)

    code, env = s.do(http.MethodGet, "/v1/admin/queues/"+queueID, s.admin, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Contains(t, string(env.Data), "S001")

    code, _ = s.do(http.MethodDelete, "/v1/admin/customers/s001/spot", s.admin, nil)
    require.Equal(t, http.StatusOK, code)
    code, env = s.do(http.MethodDelete, "/v1/admin/customers/S001/spot", s.admin, nil)
    assert.Equal(t, http.StatusNotFound, code)
    assert.Equal(t, "NOT_IN_QUEUE", env.Code)

    code, env = s.do(http.MethodPost, "/v1/admin/customers/S001/reset-attempts", s.admin, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Zero(t, decode[model.Customer](t, env.Data).ReservationAttempts)

    code, env = s.do(http.MethodPost, "/v1/admin/reservations/nope/cancel", s.admin, nil)
    assert.Equal(t, http.StatusNotFound, code)

    code, _ = s.do(http.MethodDelete, "/v1/admin/houses/crypt-of-echoes", s.admin, nil)
    assert.Equal(t, http.StatusNoContent, code)
    code, _ = s.do(http.MethodGet, "/v1/queues/"+queueID, "", nil)
    assert.Equal(t, http.StatusNotFound, code)
}

func TestAuthLifecycle(t *testing.T) {
    s := newServer(t)
    reg := s.register("S001", "s1@school.test")

    code, env := s.do(http.MethodPost, "/v1/auth/register", "", echo.Map{
        "email": "s1@school.test", "password": "password-123", "student_id": "S009", "name": "Dup",
    })
    assert.Equal(t, http.StatusConflict, code, env.Message)

    code, env = s.do(http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "bad", "password": "x"})
    assert.Equal(t, http.StatusBadRequest, code)
    assert.Equal(t, "INVALID_INPUT", env.Code)

    code, _ = s.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "s1@school.test", "password": "wrong-password"})
    assert.Equal(t, http.StatusUnauthorized, code)

    code, env = s.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "s1@school.test", "password": "password-123"})
    require.Equal(t, http.StatusOK, code)
    login := decode[authData](t, env.Data)

    code, env = s.do(http.MethodGet, "/v1/me", login.Access.Token, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Contains(t, string(env.Data), "S001")

    code, env = s.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": reg.Refresh.Token})
    require.Equal(t, http.StatusOK, code)
    rotated := decode[authData](t, env.Data)
    assert.NotEqual(t, reg.Refresh.Token, rotated.Refresh.Token)

    // The old refresh token was revoked by rotation.
    code, _ = s.do(http.MethodPost, "/v1/auth/refresh-access", "", echo.Map{"refresh_token": reg.Refresh.Token})
    assert.Equal(t, http.StatusUnauthorized, code)

    code, _ = s.do(http.MethodPost, "/v1/auth/logout", "", echo.Map{"refresh_token": rotated.Refresh.Token})
    assert.Equal(t, http.StatusNoContent, code)
    code, _ = s.do(http.MethodPost, "/v1/auth/logout", login.Access.Token, nil)
    assert.Equal(t, http.StatusNoContent, code)
    code, _ = s.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": login.Refresh.Token})
    assert.Equal(t, http.StatusUnauthorized, code)
}
