package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/echoworld-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr derives the status and code from a typed error. Internal
// failures are not echoed to the client.
func RespondErr(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil {
		ae = apierr.New(http.StatusInternalServerError, "internal", nil)
	}
	if err != nil {
		_ = c.Error(err)
	}
	msg := "internal error"
	if ae.Status < http.StatusInternalServerError || ae.Status == http.StatusServiceUnavailable {
		msg = ae.Error()
	}
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{Error: APIError{Message: msg, Code: ae.Code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
