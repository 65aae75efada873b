package handlers

import "github.com/gin-gonic/gin"

// Fail writes the error envelope every endpoint shares.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
