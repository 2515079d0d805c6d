package middleware

import "github.com/gin-gonic/gin"

const userIDKey = "user_id"

// SetUserID сохраняет id пользователя в контексте gin.
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// UserID извлекает id пользователя, установленный Auth.
func UserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}
