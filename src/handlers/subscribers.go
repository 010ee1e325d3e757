package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linq/waitlist/src/logging"
	"github.com/linq/waitlist/src/middleware"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/services"
)

// SubscriberHandler serves the public signup form and the admin listing
type SubscriberHandler struct {
	subscribers *services.SubscriberService
}

// NewSubscriberHandler creates a new subscriber handler
func NewSubscriberHandler(subscribers *services.SubscriberService) *SubscriberHandler {
	return &SubscriberHandler{subscribers: subscribers}
}

// SubscribeRequest represents the waitlist signup form
type SubscribeRequest struct {
	Name  string `json:"name" binding:"required,max=200"`
	Email string `json:"email" binding:"required,email,max=320"`
}

// HandleSubscribe adds a visitor to the waitlist
func (sh *SubscriberHandler) HandleSubscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "name and a valid email are required",
		})
		return
	}

	_, err := sh.subscribers.Subscribe(c.Request.Context(), req.Name, req.Email)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"message": "Successfully subscribed!",
		})
	case errors.Is(err, services.ErrEmailAlreadyRegistered):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Email already registered",
		})
	default:
		logger := logging.ComponentLogger("subscriber_handler", middleware.GetRequestID(c))
		logger.Error().Err(err).Msg("failed to subscribe")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to subscribe",
		})
	}
}

// SubscriberListResponse is the admin page payload
type SubscriberListResponse struct {
	Subscribers []models.Subscriber `json:"subscribers"`
	services.SubscriberStats
}

// HandleListSubscribers returns every subscriber, newest first, with counters
func (sh *SubscriberHandler) HandleListSubscribers(c *gin.Context) {
	subscribers, err := sh.subscribers.List(c.Request.Context())
	if err != nil {
		logger := logging.ComponentLogger("subscriber_handler", middleware.GetRequestID(c))
		logger.Error().Err(err).Msg("failed to list subscribers")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list subscribers",
		})
		return
	}

	c.JSON(http.StatusOK, SubscriberListResponse{
		Subscribers:     subscribers,
		SubscriberStats: sh.subscribers.Stats(subscribers),
	})
}
