package handler

import (
    "context" // provides context with cancellation for DB calls
    "errors"
    "net/http" // HTTP status codes and primitives
    "strings"  // string manipulation utilities
    "time"     // timeouts for DB calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/haunted-house-queue/internal/config"     // app configuration
    "github.com/iliyamo/haunted-house-queue/internal/middleware" // identity accessors
    "github.com/iliyamo/haunted-house-queue/internal/model"
    "github.com/iliyamo/haunted-house-queue/internal/repository" // DB repositories
    "github.com/iliyamo/haunted-house-queue/internal/utils"      // helper functions (hashing, token issuing)
)

// UserStore is the account storage AuthHandler needs.  *repository.UserRepo
// implements it.
type UserStore interface {
    Create(ctx context.Context, u *model.User, password string, cost int) error
    GetByEmail(ctx context.Context, email string) (*model.User, error)
    GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore is the refresh token storage AuthHandler needs.
// *repository.TokenRepo implements it.
type TokenStore interface {
    StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
    ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
    RevokeByHash(ctx context.Context, tokenHash string) error
    RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg    config.Config
    Users  UserStore
    Tokens TokenStore
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

// registerReq creates a customer account linked to a student profile.
type registerReq struct {
    Email      string `json:"email" validate:"required,email,max=255"`
    Password   string `json:"password" validate:"required,min=8,max=72"`
    StudentID  string `json:"student_id" validate:"required,max=32"`
    Name       string `json:"name" validate:"required,max=100"`
    Homeroom   string `json:"homeroom" validate:"max=32"`
    TicketType string `json:"ticket_type" validate:"max=32"`
}
type loginReq struct {
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID         uint64  `json:"id"`
    Email      string  `json:"email"`
    Role       string  `json:"role"`
    Name       string  `json:"name"`
    StudentID  *string `json:"student_id,omitempty"`
    Homeroom   *string `json:"homeroom,omitempty"`
    TicketType *string `json:"ticket_type,omitempty"`
}
type authResp struct {
    User    userPart  `json:"user"`
    Access  tokenPart `json:"access"`
    Refresh tokenPart `json:"refresh"`
}

func toUserPart(u *model.User) userPart {
    return userPart{
        ID: u.ID, Email: u.Email, Role: u.Role, Name: u.Name,
        StudentID: u.StudentID, Homeroom: u.Homeroom, TicketType: u.TicketType,
    }
}

func optional(s string) *string {
    s = strings.TrimSpace(s)
    if s == "" {
        return nil
    }
    return &s
}

// issue creates an access and refresh token pair for u and stores the
// refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u *model.User) (authResp, error) {
    studentID := ""
    if u.StudentID != nil {
        studentID = *u.StudentID
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, studentID, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, err
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, err
    }
    if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return authResp{}, err
    }
    return authResp{
        User:    toUserPart(u),
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
    }, nil
}

// Register: create a customer account and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if msg := bind(c, &req); msg != "" {
        return badRequest(c, msg)
    }
    u := &model.User{
        Email:      req.Email,
        Role:       model.RoleCustomer,
        StudentID:  optional(strings.ToUpper(req.StudentID)),
        Name:       strings.TrimSpace(req.Name),
        Homeroom:   optional(req.Homeroom),
        TicketType: optional(req.TicketType),
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Users.Create(ctx, u, req.Password, h.Cfg.BcryptCost); err != nil {
        switch {
        case errors.Is(err, repository.ErrEmailExists):
            return utils.ErrorResponse(c, http.StatusConflict, "CONFLICT", "email already exists")
        case errors.Is(err, repository.ErrStudentIDExists):
            return utils.ErrorResponse(c, http.StatusConflict, "CONFLICT", "student id already registered")
        }
        return fail(c, err)
    }
    resp, err := h.issue(ctx, u)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusCreated, "registered", resp)
}

// Login: verify and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if msg := bind(c, &req); msg != "" {
        return badRequest(c, msg)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByEmail(ctx, req.Email)
    if errors.Is(err, repository.ErrNotFound) {
        return unauthorized(c, "invalid credentials")
    }
    if err != nil {
        return fail(c, err)
    }
    if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return unauthorized(c, "invalid credentials")
    }
    resp, err := h.issue(ctx, u)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "logged in", resp)
}

// refreshUser validates a raw refresh token and loads its owner.
func (h *AuthHandler) refreshUser(ctx context.Context, raw string) (*model.User, string, error) {
    hash := utils.HashRefreshRaw(raw)
    userID, err := h.Tokens.ValidateRefresh(ctx, hash, time.Now())
    if err != nil {
        return nil, "", err
    }
    u, err := h.Users.GetByID(ctx, userID)
    if errors.Is(err, repository.ErrNotFound) {
        return nil, "", repository.ErrTokenInvalid
    }
    if err != nil {
        return nil, "", err
    }
    if !u.IsActive {
        return nil, "", repository.ErrTokenInvalid
    }
    return u, hash, nil
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return badRequest(c, "refresh_token required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, hash, err := h.refreshUser(ctx, strings.TrimSpace(req.RefreshToken))
    if errors.Is(err, repository.ErrTokenInvalid) {
        return unauthorized(c, "invalid refresh")
    }
    if err != nil {
        return fail(c, err)
    }
    // Revoking first makes the token single use under concurrent refreshes.
    if err := h.Tokens.RevokeByHash(ctx, hash); errors.Is(err, repository.ErrTokenInvalid) {
        return unauthorized(c, "invalid refresh")
    } else if err != nil {
        return fail(c, err)
    }
    resp, err := h.issue(ctx, u)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "refreshed", resp)
}

// RefreshAccess: return a new access token WITHOUT rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return badRequest(c, "refresh_token required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, _, err := h.refreshUser(ctx, strings.TrimSpace(req.RefreshToken))
    if errors.Is(err, repository.ErrTokenInvalid) {
        return unauthorized(c, "invalid refresh")
    }
    if err != nil {
        return fail(c, err)
    }
    studentID := ""
    if u.StudentID != nil {
        studentID = *u.StudentID
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, studentID, h.Cfg.AccessTTLMin)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "refreshed", echo.Map{
        "access": tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Logout revokes the refresh token in the body or, when only a bearer
// access token is supplied, every session of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
    var uid uint64
    if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
        if claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))); err == nil {
            uid, _ = claims.UserID()
        }
    }

    var req refreshReq
    _ = c.Bind(&req)
    refreshToken := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    switch {
    case refreshToken != "":
        err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(refreshToken))
        if errors.Is(err, repository.ErrTokenInvalid) {
            return unauthorized(c, "invalid refresh token")
        }
        if err != nil {
            return fail(c, err)
        }
    case uid != 0:
        if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
            return fail(c, err)
        }
    default:
        return badRequest(c, "provide Authorization header or refresh_token")
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return unauthorized(c, "unauthorized")
    }
    u, err := h.Users.GetByID(c.Request().Context(), uid)
    if errors.Is(err, repository.ErrNotFound) {
        return unauthorized(c, "unauthorized")
    }
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", toUserPart(u))
}
