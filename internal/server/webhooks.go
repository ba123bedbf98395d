package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	billingdomain "github.com/counselkit/letterflow/internal/billing/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.billingSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		// Duplicates and unrelated event types are acknowledged so the
		// provider stops redelivering them.
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) ||
			errors.Is(err, billingdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
