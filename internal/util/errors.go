package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrStaleAssignment    = errors.New("paper assignment expired, please reload the paper")
	ErrMissingItems       = errors.New("some requested questions could not be resolved")
	ErrDuplicatePlacement = errors.New("placement test already completed")
	ErrNoQuestions        = errors.New("no questions available")
	ErrInvalidSkillArea   = errors.New("invalid skill area")
	ErrInvalidSubmission  = errors.New("invalid submission payload")
)

// 业务错误码，随 ErrorCode 响应下发
const (
	CodeValidation       = "VALIDATION"
	CodeStaleAssignment  = "STALE_ASSIGNMENT"
	CodeMissingItems     = "MISSING_ITEMS"
	CodeAlreadyCompleted = "ALREADY_COMPLETED"
	CodeNotFound         = "NOT_FOUND"
)
