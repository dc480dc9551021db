package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 常用错误提示信息
const (
	MsgInvalidRequest      = "invalid request body"
	MsgInvalidMessageID    = "invalid message id"
	MsgInvalidEmailAddress = "invalid email address"
	MsgInvalidMessageType  = "invalid message type"
	MsgAddressNotFound     = "email address not found"
	MsgMessageNotFound     = "message not found"
	MsgInternalError       = "internal server error"
)

// Success 成功响应（200），fields 合并进统一信封
func Success(c *gin.Context, fields gin.H) {
	respond(c, http.StatusOK, fields)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, fields gin.H) {
	respond(c, http.StatusCreated, fields)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, msg)
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, msg string) {
	Fail(c, http.StatusNotFound, msg)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	Fail(c, http.StatusInternalServerError, msg)
}

// Fail 错误响应
func Fail(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, gin.H{
		"success": false,
		"error":   msg,
	})
}

func respond(c *gin.Context, httpCode int, fields gin.H) {
	body := gin.H{"success": true}
	for key, value := range fields {
		body[key] = value
	}
	c.JSON(httpCode, body)
}
