package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Desarso/chatrelay/models"
)

// RequestLogger logs one line per request once the response is finished.
func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := c.Request.Method + " " + c.Request.URL.RequestURI()
		switch {
		case status >= 500:
			logger.Printf("✗ %s %d - %v", line, status, time.Since(start))
		case status >= 400:
			logger.Printf("⚠ %s %d - %v", line, status, time.Since(start))
		default:
			logger.Printf("✓ %s %d - %v", line, status, time.Since(start))
		}
	}
}

// CORS allows the configured browser origin, with credentials.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ErrorHandler renders the last error attached with c.Error as the JSON
// envelope. Responses that already started (an SSE stream) are left alone.
// Details of unexpected errors are only exposed in development.
func ErrorHandler(logger *log.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		logger.Printf("Error occurred: %v", err)

		if c.Writer.Written() {
			return
		}

		appErr := toAppError(err)
		body := models.ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		if body.Details == nil && development && appErr.Err != nil && appErr.Status >= 500 {
			body.Details = appErr.Err.Error()
		}
		c.JSON(appErr.Status, models.ErrorResponse{Error: body})
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorBody{
		Code:    CodeNotFound,
		Message: "The requested resource was not found",
	}})
}
