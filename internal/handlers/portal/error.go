package portal

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/welcomarr/welcomarr/internal/handlers/middleware"
)

func responseError(c *gin.Context, httpCode int, errMsg string) {
	c.JSON(httpCode, gin.H{"error": errMsg})
}

// responseErrorAndLogMaybeHack answers like responseError and flags the
// request for the firewall. kind and subject name what was guessed.
func responseErrorAndLogMaybeHack(c *gin.Context, httpCode int, errMsg, kind, subject string) {
	logMayHack(c, errMsg, kind, subject)
	responseError(c, httpCode, errMsg)
}

func logMayHack(c *gin.Context, errMsg, kind, subject string) {
	c.Set(middleware.KeyHackingError, middleware.Suspect{
		Route:   c.Request.Method + " " + c.FullPath(),
		Reason:  errMsg,
		Kind:    kind,
		Subject: subject,
	})
}

func internalError(c *gin.Context) {
	responseError(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
