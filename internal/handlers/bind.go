package handlers

import (
	"net/http"
	"strconv"

	"telehealth/internal/middleware"
	"telehealth/internal/models"
	"telehealth/internal/utils"

	"github.com/gin-gonic/gin"
)

// bindJSON decodes the body into v and runs struct validation, writing the
// error response itself when either fails.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if errs := utils.ValidateStruct(v); len(errs) > 0 {
		utils.ValidationErrorResponse(c, utils.ValidationDetails(errs))
		return false
	}
	return true
}

func identity(c *gin.Context) (models.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return id, ok
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
