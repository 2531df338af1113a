package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nasda-team/nasda/config"
	"github.com/nasda-team/nasda/middleware"
	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

const recentPostsOnProfile = 5

// Cooldown rate-limits repeated actions per key.
type Cooldown interface {
	TryCooldown(key string, d time.Duration) bool
}

// AuthController handles registration, login and account management endpoints.
type AuthController struct {
	users    *services.UserService
	posts    *services.PostService
	cooldown Cooldown
}

// NewAuthController creates an AuthController.
func NewAuthController(users *services.UserService, posts *services.PostService, cooldown Cooldown) *AuthController {
	return &AuthController{users: users, posts: posts, cooldown: cooldown}
}

func tokenTTL() time.Duration {
	return time.Duration(config.Get().TokenTTLHours) * time.Hour
}

func userResponse(user models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"login_id":   user.LoginID,
		"nickname":   user.Nickname,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	}
}

func (a *AuthController) issueToken(ctx *gin.Context, user models.User, status int) {
	token, err := utils.GenerateToken(user.ID, user.Nickname, tokenTTL())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}
	utils.Respond(ctx, status, 0, "success", gin.H{
		"token": token,
		"user":  userResponse(user),
	})
}

// Register creates an account for an email that passed verification.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		LoginID  string `json:"login_id" binding:"required,min=4,max=20"`
		Password string `json:"password" binding:"required,min=8,max=64"`
		Confirm  string `json:"confirm"`
		Nickname string `json:"nickname" binding:"required,min=2,max=30"`
		Email    string `json:"email" binding:"required,email"`
		Code     string `json:"code"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if req.Confirm != "" && req.Password != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40002, "비밀번호가 일치하지 않습니다.")
		return
	}

	ip := ctx.ClientIP()
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "요청이 너무 많습니다. 잠시 후 다시 시도해주세요.")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "오늘 가입 가능 횟수를 초과했습니다.")
		return
	}

	in := services.JoinInput{
		LoginID:  req.LoginID,
		Password: req.Password,
		Nickname: req.Nickname,
		Email:    req.Email,
	}
	// conflicts first so a rejected form keeps the email verification
	if err := a.users.CheckJoinConflicts(in); err != nil {
		respondServiceError(ctx, err, 50002, "failed to create user")
		return
	}

	// a code sent along with the form counts as the verification step
	if strings.TrimSpace(req.Code) != "" {
		a.users.CheckVerificationCode(req.Email, req.Code)
	}
	if !a.users.ConsumeVerifiedEmail(req.Email) {
		utils.Error(ctx, http.StatusBadRequest, 40003, "이메일 인증이 필요합니다.")
		return
	}

	userID, err := a.users.Join(in)
	if err != nil {
		respondServiceError(ctx, err, 50002, "failed to create user")
		return
	}
	utils.RegistrationDailyIncrement(ip)

	user, err := a.users.FindByID(userID)
	if err != nil {
		respondServiceError(ctx, err, 50002, "failed to create user")
		return
	}
	a.issueToken(ctx, *user, http.StatusCreated)
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		LoginID  string `json:"login_id" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid request payload")
		return
	}

	user, err := a.users.Authenticate(req.LoginID, req.Password)
	if err != nil {
		respondServiceError(ctx, err, 50004, "failed to login")
		return
	}
	a.issueToken(ctx, *user, http.StatusOK)
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	if !a.revokeCurrentToken(ctx) {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

func (a *AuthController) revokeCurrentToken(ctx *gin.Context) bool {
	token := ctx.GetString(middleware.ContextTokenKey)
	value, _ := ctx.Get(middleware.ContextClaimsKey)
	claims, ok := value.(*utils.Claims)
	if token == "" || !ok {
		return false
	}
	utils.BlacklistToken(token, utils.TokenExpiry(claims, tokenTTL()))
	return true
}

// SendEmailCode mails a verification code. Requests for the same email are throttled.
func (a *AuthController) SendEmailCode(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "올바른 이메일을 입력해주세요.")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	taken, err := a.users.IsEmailTaken(email)
	if err != nil {
		respondServiceError(ctx, err, 50041, "failed to check email")
		return
	}
	if taken {
		respondServiceError(ctx, services.ErrEmailTaken, 50041, "")
		return
	}

	cooldown := time.Duration(config.Get().EmailCodeCooldownSec) * time.Second
	if !a.cooldown.TryCooldown(email, cooldown) {
		utils.Error(ctx, http.StatusTooManyRequests, 42911, "요청이 너무 많습니다. 잠시 후 다시 시도해주세요.")
		return
	}
	if err := a.users.SendVerificationCode(email); err != nil {
		respondServiceError(ctx, err, 50040, "인증번호 발송에 실패했습니다. 잠시 후 다시 시도해주세요.")
		return
	}
	utils.Success(ctx, gin.H{"message": "인증번호가 발송되었습니다."})
}

// VerifyEmailCode checks the mailed code and marks the email verified for registration.
func (a *AuthController) VerifyEmailCode(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid request payload")
		return
	}
	if !a.users.CheckVerificationCode(req.Email, req.Code) {
		utils.Error(ctx, http.StatusBadRequest, 40043, "인증번호가 올바르지 않거나 만료되었습니다.")
		return
	}
	utils.Success(ctx, gin.H{"verified": true})
}

// FindID mails the login id registered with the email.
func (a *AuthController) FindID(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40044, "invalid request payload")
		return
	}
	if err := a.users.SendLoginID(req.Email); err != nil {
		respondServiceError(ctx, err, 50042, "메일 발송에 실패했습니다.")
		return
	}
	utils.Success(ctx, gin.H{"message": "가입하신 이메일로 아이디를 보내드렸습니다."})
}

// ResetPassword mails a temporary password for a matching login id and email.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	var req struct {
		LoginID string `json:"login_id" binding:"required"`
		Email   string `json:"email" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40045, "invalid request payload")
		return
	}
	if err := a.users.ResetPassword(req.LoginID, req.Email); err != nil {
		respondServiceError(ctx, err, 50043, "메일 발송에 실패했습니다.")
		return
	}
	utils.Success(ctx, gin.H{"message": "임시 비밀번호를 이메일로 보내드렸습니다."})
}

// CheckDuplicate reports whether a login id, nickname or email is already in use.
func (a *AuthController) CheckDuplicate(ctx *gin.Context) {
	field := strings.TrimSpace(ctx.Query("field"))
	value := strings.TrimSpace(ctx.Query("value"))
	if value == "" {
		utils.Error(ctx, http.StatusBadRequest, 40046, "value is required")
		return
	}

	var check func(string) (bool, error)
	switch field {
	case "login_id":
		check = a.users.IsLoginIDTaken
	case "nickname":
		check = a.users.IsNicknameTaken
	case "email":
		check = a.users.IsEmailTaken
	default:
		utils.Error(ctx, http.StatusBadRequest, 40047, "field must be login_id, nickname or email")
		return
	}
	taken, err := check(value)
	if err != nil {
		respondServiceError(ctx, err, 50044, "failed to check duplicate")
		return
	}
	utils.Success(ctx, gin.H{"field": field, "value": value, "available": !taken})
}

// Me returns the caller's profile with a post count and the newest posts.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	user, err := a.users.FindByID(userID)
	if err != nil {
		respondServiceError(ctx, err, 50005, "failed to load user")
		return
	}
	count, err := a.posts.CountByUser(userID)
	if err != nil {
		respondServiceError(ctx, err, 50005, "failed to load user")
		return
	}
	recent, err := a.posts.RecentByUser(userID, recentPostsOnProfile)
	if err != nil {
		respondServiceError(ctx, err, 50005, "failed to load user")
		return
	}
	utils.Success(ctx, gin.H{
		"user":         userResponse(*user),
		"post_count":   count,
		"recent_posts": recent,
	})
}

// UpdateProfile changes nickname and email. The token carries the old nickname
// until the caller logs in again, so a fresh token is issued.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		Nickname string `json:"nickname" binding:"omitempty,min=2,max=30"`
		Email    string `json:"email" binding:"omitempty,email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)
	user, err := a.users.UpdateProfile(userID, req.Nickname, req.Email)
	if err != nil {
		respondServiceError(ctx, err, 50006, "failed to update profile")
		return
	}
	a.issueToken(ctx, *user, http.StatusOK)
}

// CheckPassword confirms the caller's current password.
func (a *AuthController) CheckPassword(ctx *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)
	ok, err := a.users.CheckCurrentPassword(userID, req.Password)
	if err != nil {
		respondServiceError(ctx, err, 50007, "failed to check password")
		return
	}
	utils.Success(ctx, gin.H{"matches": ok})
}

// ChangePassword replaces the password after verifying the current one.
func (a *AuthController) ChangePassword(ctx *gin.Context) {
	var req struct {
		Current  string `json:"current_password" binding:"required"`
		Password string `json:"new_password" binding:"required,min=8,max=64"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40008, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)
	ok, err := a.users.CheckCurrentPassword(userID, req.Current)
	if err != nil {
		respondServiceError(ctx, err, 50008, "failed to change password")
		return
	}
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40009, "현재 비밀번호가 일치하지 않습니다.")
		return
	}
	if err := a.users.UpdatePassword(userID, req.Password); err != nil {
		respondServiceError(ctx, err, 50008, "failed to change password")
		return
	}
	utils.Success(ctx, gin.H{"message": "비밀번호가 변경되었습니다."})
}

// DeleteAccount removes the caller's account after a password check and revokes the token.
// Posts and comments stay with an unknown author.
func (a *AuthController) DeleteAccount(ctx *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)
	deleted, err := a.users.DeleteWithPassword(userID, req.Password)
	if err != nil {
		respondServiceError(ctx, err, 50009, "failed to delete account")
		return
	}
	if !deleted {
		utils.Error(ctx, http.StatusBadRequest, 40009, "현재 비밀번호가 일치하지 않습니다.")
		return
	}

	utils.InvalidateByPrefix(utils.HomeFeedCachePrefix)
	a.revokeCurrentToken(ctx)
	utils.Success(ctx, gin.H{"message": "회원 탈퇴가 완료되었습니다."})
}
