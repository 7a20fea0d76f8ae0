package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/errors"
)

// DataResponse is the standard success envelope.
type DataResponse struct {
	Data any `json:"data"`
}

// RespondWithError writes err as a JSON error body. AppErrors keep their
// status and code; anything else becomes a 500.
func RespondWithError(c *gin.Context, err error) {
	appErr := errors.Wrap(err)
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

// RespondOK sends a 200 response wrapping data.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

// RespondNoContent sends a 204 with no body.
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
