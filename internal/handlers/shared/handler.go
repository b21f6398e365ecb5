package shared

import (
	"io"

	"tripchat/internal/middleware"
	"tripchat/internal/utils"
	"tripchat/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func currentUser(c *gin.Context) (primitive.ObjectID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
	}
	return userID, ok
}

func pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

// bindJSON decodes the body into req. An empty body leaves req untouched
// when optional is set.
func bindJSON(c *gin.Context, req interface{}, optional bool) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if optional && err == io.EOF {
			return true
		}
		utils.BadRequestResponse(c, "Invalid request body")
		return false
	}
	return true
}

func checkValid(c *gin.Context, errs validators.ValidationErrors) bool {
	if len(errs) == 0 {
		return true
	}
	utils.ValidationErrorResponse(c, errs.Details())
	return false
}
