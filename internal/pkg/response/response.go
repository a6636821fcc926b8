package response

import "github.com/gin-gonic/gin"

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// AbortError writes the error envelope and stops the handler chain.
func AbortError(c *gin.Context, statusCode int, code string, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// Session writes the flat body game clients expect from the session endpoints:
// the payload fields next to the status flag, plus an error object on failure.
func Session(c *gin.Context, statusCode int, flag string, ok bool, fields gin.H) {
	body := gin.H{flag: ok}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(statusCode, body)
}

// SessionError is Session for failures; retriable tells the client whether backing off
// and retrying can succeed without a fresh login.
func SessionError(c *gin.Context, statusCode int, flag string, code string, message string, retriable bool) {
	SessionErrorWithDetails(c, statusCode, flag, code, message, retriable, nil)
}

// SessionErrorWithDetails adds per-field details, omitted when nil.
func SessionErrorWithDetails(c *gin.Context, statusCode int, flag string, code string, message string, retriable bool, details any) {
	errBody := gin.H{
		"code":      code,
		"message":   message,
		"retriable": retriable,
	}
	if details != nil {
		errBody["details"] = details
	}
	c.JSON(statusCode, gin.H{
		flag:    false,
		"error": errBody,
	})
}
