package handlers

import (
	"errors"
	"net/http"

	"poll-service/internal/models"
	"poll-service/internal/poll"
	"poll-service/internal/pollview"
	"poll-service/internal/services"
	"poll-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type PollHandler struct {
	pollService *services.PollSyncService
}

func NewPollHandler(pollService *services.PollSyncService) *PollHandler {
	return &PollHandler{pollService: pollService}
}

type CreatePollRequest struct {
	ChannelID     string                   `json:"channelId" binding:"required"`
	MessageID     string                   `json:"messageId"`
	Question      string                   `json:"question" binding:"required"`
	Description   string                   `json:"description"`
	Options       []string                 `json:"options" binding:"required,min=1,dive,min=1"`
	AllowMultiple bool                     `json:"allowMultiple"`
	IsAnonymous   bool                     `json:"isAnonymous"`
	ShowResults   models.ShowResultsPolicy `json:"showResults"`
	User          models.User              `json:"user" binding:"required"`
}

type CastVoteRequest struct {
	OptionID string      `json:"optionId" binding:"required"`
	User     models.User `json:"user" binding:"required"`
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": response.ErrCodeParamInvalid, "error": err.Error()})
		return
	}
	if req.ShowResults != "" && !req.ShowResults.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": response.ErrCodeParamInvalid, "error": "invalid showResults policy"})
		return
	}

	data := &models.Poll{
		Question:      req.Question,
		Description:   req.Description,
		AllowMultiple: req.AllowMultiple,
		IsAnonymous:   req.IsAnonymous,
		ShowResults:   req.ShowResults,
	}
	for _, text := range req.Options {
		data.Options = append(data.Options, models.PollOption{Text: text})
	}

	created, err := h.pollService.CreatePoll(c.Request.Context(), data, req.User, req.ChannelID, req.MessageID)
	if err != nil {
		if errors.Is(err, services.ErrPollInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"code": response.ErrCodePollInvalid, "error": response.Message(response.ErrCodePollInvalid)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// CastVote handles POST /polls/:id/vote
func (h *PollHandler) CastVote(c *gin.Context) {
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": response.ErrCodeParamInvalid, "error": err.Error()})
		return
	}

	result, err := h.pollService.CastVote(c.Request.Context(), c.Param("id"), req.OptionID, req.User)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPollNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": response.ErrCodePollNotFound, "error": response.Message(response.ErrCodePollNotFound)})
		case errors.Is(err, poll.ErrOptionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": response.ErrCodeOptionNotFound, "error": response.Message(response.ErrCodeOptionNotFound)})
		case errors.Is(err, services.ErrVotingClosed):
			c.JSON(http.StatusForbidden, gin.H{"code": response.ErrCodeVotingClosed, "error": response.Message(response.ErrCodeVotingClosed)})
		case errors.Is(err, services.ErrSingleChoice):
			c.JSON(http.StatusConflict, gin.H{"code": response.ErrCodeVoteConflict, "error": response.Message(response.ErrCodeVoteConflict)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"action":     result.Action,
		"optionText": result.OptionText,
		"poll":       result.UpdatedPoll,
	})
}

// GetPoll handles GET /polls/:id
func (h *PollHandler) GetPoll(c *gin.Context) {
	snapshot, err := h.pollService.GetPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": response.ErrCodePollNotFound, "error": response.Message(response.ErrCodePollNotFound)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetPollStats handles GET /polls/:id/stats
func (h *PollHandler) GetPollStats(c *gin.Context) {
	snapshot, err := h.pollService.GetPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": response.ErrCodePollNotFound, "error": response.Message(response.ErrCodePollNotFound)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, poll.Stats(snapshot))
}

// GetPollView handles GET /polls/:id/view?userId=...
// Returns the per-option presentation state the widget renders.
func (h *PollHandler) GetPollView(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": response.ErrCodeParamInvalid, "error": "userId parameter is required"})
		return
	}

	snapshot, err := h.pollService.GetPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": response.ErrCodePollNotFound, "error": response.Message(response.ErrCodePollNotFound)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pollId":  snapshot.ID,
		"options": pollview.BuildOptionViews(snapshot, userID),
	})
}

// GetChannelPolls handles GET /channels/:id/polls
func (h *PollHandler) GetChannelPolls(c *gin.Context) {
	polls, err := h.pollService.GetChannelPolls(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"polls": polls})
}

// DeactivatePoll handles POST /polls/:id/deactivate
func (h *PollHandler) DeactivatePoll(c *gin.Context) {
	var body struct {
		User models.User `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": response.ErrCodeParamInvalid, "error": err.Error()})
		return
	}

	updated, err := h.pollService.Deactivate(c.Request.Context(), c.Param("id"), body.User)
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": response.ErrCodePollNotFound, "error": response.Message(response.ErrCodePollNotFound)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeletePoll handles DELETE /polls/:id
func (h *PollHandler) DeletePoll(c *gin.Context) {
	if err := h.pollService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": response.ErrCodeSuccess, "message": response.Message(response.ErrCodeSuccess)})
}
