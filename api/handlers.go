package api

import (
	"net/http"
	"strconv"

	"spinwheel/models"
	"spinwheel/service"

	"github.com/gin-gonic/gin"
)

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return 0, false
	}
	return limit, true
}

type wheelHandler struct {
	wheels service.WheelService
}

type createWheelRequest struct {
	HostID     int64 `json:"host_id" binding:"required"`
	EntryFee   int64 `json:"entry_fee" binding:"required"`
	MaxPlayers *int  `json:"max_players"`
}

func (h *wheelHandler) create(c *gin.Context) {
	var req createWheelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "host_id and entry_fee are required")
		return
	}
	wheel, err := h.wheels.CreateWheel(c.Request.Context(), req.HostID, req.EntryFee, req.MaxPlayers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wheel)
}

func (h *wheelHandler) list(c *gin.Context) {
	var status *models.WheelStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseWheelStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		status = &parsed
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	wheels, err := h.wheels.ListWheels(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wheels": wheels})
}

func (h *wheelHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.wheels.GetWheel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *wheelHandler) participants(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	participants, err := h.wheels.GetParticipants(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

type joinRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func (h *wheelHandler) join(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id is required")
		return
	}
	join, err := h.wheels.JoinWheel(c.Request.Context(), id, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, join)
}

func (h *wheelHandler) start(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.wheels.ManualStart(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"wheel_id": id, "status": models.WheelStatusRunning})
}

func (h *wheelHandler) abort(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.wheels.AbortWheel(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wheel_id": id, "status": models.WheelStatusAborted})
}

type userHandler struct {
	users  service.UserService
	ledger service.LedgerService
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *userHandler) create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username is required")
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *userHandler) list(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	users, err := h.users.ListUsers(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *userHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *userHandler) transactions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	history, err := h.ledger.History(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": history})
}

type grantRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Note   string `json:"note"`
}

func (h *userHandler) grant(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount is required")
		return
	}
	meta := "grant"
	if req.Note != "" {
		meta = "grant:" + req.Note
	}
	tx, err := h.ledger.Transfer(c.Request.Context(), service.Transfer{
		UserID: id,
		Delta:  req.Amount,
		Kind:   models.TransactionKindGrant,
		Meta:   meta,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}
