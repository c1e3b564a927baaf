package api

import "github.com/gin-gonic/gin"

// AbortWithError stops the handler chain, records err for the request
// logger and writes it as a VaultAPIError. An err that already is a
// VaultAPIError keeps its own code.
func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	body, ok := AsAPIError(err)
	if !ok {
		body = NewError(code, err)
	}
	if err != nil {
		_ = ctx.Error(err)
	}
	ctx.AbortWithStatusJSON(status, body)
}
