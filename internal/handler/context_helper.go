package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-api/internal/middleware"
	"github.com/noah-isme/tutoring-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// subjectParam reads the percent-decoded subject segment. The router matches on the
// raw path, so clients send "/" inside a subject as %2F.
func subjectParam(c *gin.Context) string {
	return c.Param("subject")
}
