package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success 统一成功响应格式
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": data,
	})
}

// Error 统一错误响应格式，code 与HTTP状态码一致
func Error(c *gin.Context, statusCode int, msg string) {
	c.JSON(statusCode, gin.H{
		"code": statusCode,
		"msg":  msg,
	})
}
