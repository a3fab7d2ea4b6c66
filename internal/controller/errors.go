package controller

import (
	"errors"
	"net/http"
	"toeic_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondServiceError 把服务层错误映射为带业务码的 HTTP 响应
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrStaleAssignment):
		util.ErrorCode(c, http.StatusConflict, util.CodeStaleAssignment, err.Error())
	case errors.Is(err, util.ErrMissingItems):
		util.ErrorCode(c, http.StatusUnprocessableEntity, util.CodeMissingItems, err.Error())
	case errors.Is(err, util.ErrDuplicatePlacement):
		util.ErrorCode(c, http.StatusForbidden, util.CodeAlreadyCompleted, err.Error())
	case errors.Is(err, util.ErrInvalidSkillArea), errors.Is(err, util.ErrInvalidSubmission):
		util.ErrorCode(c, http.StatusBadRequest, util.CodeValidation, err.Error())
	case errors.Is(err, util.ErrNoQuestions), errors.Is(err, util.ErrAttemptNotFound), errors.Is(err, util.ErrUserNotFound):
		util.ErrorCode(c, http.StatusNotFound, util.CodeNotFound, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(c)
	default:
		util.LogInternalError(c, err)
	}
}
