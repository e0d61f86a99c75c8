package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) OnboardAccount(c *gin.Context) {
	resp, err := s.accountSvc.Onboard(c.Request.Context(), userIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAccountStatus(c *gin.Context) {
	resp, err := s.accountSvc.Status(c.Request.Context(), userIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UnlinkAccount(c *gin.Context) {
	if err := s.accountSvc.Unlink(c.Request.Context(), userIDFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
