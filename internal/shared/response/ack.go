package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ack writes a platform acknowledgment body verbatim. Payment
// platforms match the exact body on redelivery decisions, so webhook
// responses bypass the JSON envelope.
func Ack(c *gin.Context, body string) {
	c.String(http.StatusOK, body)
}

// AckFailure writes a plain-text webhook failure. A non-2xx status
// makes the platform redeliver.
func AckFailure(c *gin.Context, status int, message string) {
	c.String(status, message)
}
