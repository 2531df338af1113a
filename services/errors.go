package services

import "errors"

// Error kinds. Every service error wraps exactly one of these so callers can
// classify failures with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
)

type serviceError struct {
	kind error
	msg  string
}

func (e *serviceError) Error() string { return e.msg }
func (e *serviceError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &serviceError{kind: kind, msg: msg}
}

var (
	ErrUserNotFound     = newError(ErrNotFound, "user not found")
	ErrPostNotFound     = newError(ErrNotFound, "post not found")
	ErrCommentNotFound  = newError(ErrNotFound, "comment not found")
	ErrCategoryNotFound = newError(ErrNotFound, "category not found")

	ErrCommentEmpty       = newError(ErrInvalidArgument, "댓글 내용을 입력해주세요.")
	ErrCommentTooLong     = newError(ErrInvalidArgument, "댓글은 500자 이하로 입력해주세요.")
	ErrTitleRequired      = newError(ErrInvalidArgument, "제목을 입력해주세요.")
	ErrTitleTooLong       = newError(ErrInvalidArgument, "제목은 200자 이하로 입력해주세요.")
	ErrDescriptionTooLong = newError(ErrInvalidArgument, "내용은 5000자 이하로 입력해주세요.")
	ErrUnknownCategory    = newError(ErrInvalidArgument, "존재하지 않는 카테고리입니다.")
	ErrEmptyUpload        = newError(ErrInvalidArgument, "empty upload")
	ErrNotAnImage         = newError(ErrInvalidArgument, "only image uploads are allowed")

	ErrNotPostOwner    = newError(ErrForbidden, "only the author can modify this post")
	ErrNotCommentOwner = newError(ErrForbidden, "only the author can modify this comment")

	ErrLoginIDTaken  = newError(ErrConflict, "이미 존재하는 아이디입니다.")
	ErrEmailTaken    = newError(ErrConflict, "이미 등록된 이메일입니다.")
	ErrNicknameTaken = newError(ErrConflict, "이미 사용 중인 닉네임입니다.")

	// ErrInvalidCredentials is deliberately kindless: login failures map to 401.
	ErrInvalidCredentials = errors.New("아이디 또는 비밀번호가 올바르지 않습니다.")
	ErrEmailNotRegistered = newError(ErrNotFound, "가입되지 않은 이메일입니다.")
	ErrAccountMismatch    = newError(ErrNotFound, "아이디와 이메일이 일치하는 계정이 없습니다.")
)
