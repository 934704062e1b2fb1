package sessions

import (
	"errors"

	"github.com/Desarso/chatrelay/models"
)

// Messages carried by in-band error frames.
const (
	MsgRateLimit           = "Rate limit exceeded. Please try again later."
	MsgAuthInvalid         = "Invalid API key. Please check your configuration."
	MsgInsufficientBalance = "API credit balance is too low. Please check your billing settings."
	MsgUnavailable         = "Model service is temporarily unavailable. Please try again later."
	MsgGeneric             = "Stream error occurred"
)

// StreamErrorMessage maps an upstream failure to the message shown to the user.
func StreamErrorMessage(err error) string {
	switch {
	case err == nil:
		return MsgGeneric
	case errors.Is(err, models.ErrRateLimit):
		return MsgRateLimit
	case errors.Is(err, models.ErrAuthInvalid):
		return MsgAuthInvalid
	case errors.Is(err, models.ErrInsufficientBalance):
		return MsgInsufficientBalance
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return MsgUnavailable
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return "Model API error: " + apiErr.Message
	}
	return MsgGeneric
}
