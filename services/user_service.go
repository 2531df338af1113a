package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/utils"
)

const (
	verificationCodeLength  = 6
	temporaryPasswordLength = 8
	verifiedMarker          = "1"

	verificationMailSubject = "[Nasda] 회원가입인증번호입니다."
	findIDMailSubject       = "[Nasda] 아이디 찾기 결과입니다."
	resetMailSubject        = "[Nasda] 임시 비밀번호가 발급되었습니다."
)

// UserService handles registration, credentials and account lifecycle.
type UserService struct {
	db      *gorm.DB
	hasher  PasswordHasher
	mailer  Mailer
	codes   CodeStore
	codeTTL time.Duration
}

// NewUserService wires the collaborators. codeTTL defaults to ten minutes.
func NewUserService(db *gorm.DB, hasher PasswordHasher, mailer Mailer, codes CodeStore, codeTTL time.Duration) *UserService {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	return &UserService{db: db, hasher: hasher, mailer: mailer, codes: codes, codeTTL: codeTTL}
}

// JoinInput is the registration form.
type JoinInput struct {
	LoginID  string
	Password string
	Nickname string
	Email    string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) taken(column, value string) (bool, error) {
	var count int64
	err := s.db.Model(&models.User{}).Where(column+" = ?", value).Count(&count).Error
	return count > 0, err
}

// IsLoginIDTaken reports whether a member already uses loginID.
func (s *UserService) IsLoginIDTaken(loginID string) (bool, error) {
	return s.taken("login_id", strings.TrimSpace(loginID))
}

// IsNicknameTaken reports whether a member already uses nickname.
func (s *UserService) IsNicknameTaken(nickname string) (bool, error) {
	return s.taken("nickname", strings.TrimSpace(nickname))
}

// IsEmailTaken reports whether a member already registered email.
func (s *UserService) IsEmailTaken(email string) (bool, error) {
	return s.taken("email", normalizeEmail(email))
}

// CheckJoinConflicts reports the first of login id, email and nickname that is
// already taken, each with its own conflict error.
func (s *UserService) CheckJoinConflicts(in JoinInput) error {
	checks := []struct {
		taken func(string) (bool, error)
		value string
		err   error
	}{
		{s.IsLoginIDTaken, in.LoginID, ErrLoginIDTaken},
		{s.IsEmailTaken, in.Email, ErrEmailTaken},
		{s.IsNicknameTaken, in.Nickname, ErrNicknameTaken},
	}
	for _, c := range checks {
		taken, err := c.taken(c.value)
		if err != nil {
			return err
		}
		if taken {
			return c.err
		}
	}
	return nil
}

// Join registers a member after CheckJoinConflicts passes.
func (s *UserService) Join(in JoinInput) (uint, error) {
	if err := s.CheckJoinConflicts(in); err != nil {
		return 0, err
	}
	user := models.User{
		LoginID:  strings.TrimSpace(in.LoginID),
		Nickname: strings.TrimSpace(in.Nickname),
		Email:    normalizeEmail(in.Email),
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.db.Create(&user).Error; err != nil {
		return 0, err
	}
	return user.ID, nil
}

// FindByID loads a member.
func (s *UserService) FindByID(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Authenticate checks login credentials.
func (s *UserService) Authenticate(loginID, password string) (*models.User, error) {
	var user models.User
	err := s.db.Where("login_id = ?", strings.TrimSpace(loginID)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Matches(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// UpdateProfile changes nickname and email. Blank values keep the current one.
// Uniqueness is not re-checked here; the storage unique indexes are the only guard.
func (s *UserService) UpdateProfile(userID uint, nickname, email string) (*models.User, error) {
	user, err := s.FindByID(userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if n := strings.TrimSpace(nickname); n != "" {
		updates["nickname"] = n
	}
	if e := normalizeEmail(email); e != "" {
		updates["email"] = e
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.FindByID(userID)
}

// CheckCurrentPassword verifies raw against the stored hash.
func (s *UserService) CheckCurrentPassword(userID uint, raw string) (bool, error) {
	user, err := s.FindByID(userID)
	if err != nil {
		return false, err
	}
	return s.hasher.Matches(raw, user.PasswordHash), nil
}

// UpdatePassword stores a fresh hash of raw.
func (s *UserService) UpdatePassword(userID uint, raw string) error {
	user, err := s.FindByID(userID)
	if err != nil {
		return err
	}
	return s.setPassword(s.db, user.ID, raw)
}

func (s *UserService) setPassword(tx *gorm.DB, userID uint, raw string) error {
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"password_hash": hash,
		"updated_at":    time.Now(),
	}).Error
}

// Delete removes a member after re-parenting their posts and comments to the
// orphaned author. The steps run in that order inside one transaction.
func (s *UserService) Delete(userID uint) error {
	if _, err := s.FindByID(userID); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("user_id = ?", userID).
			UpdateColumn("user_id", models.Orphaned()).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("user_id = ?", userID).
			UpdateColumn("user_id", models.Orphaned()).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, userID).Error
	})
}

// DeleteWithPassword deletes the member only when raw matches; it reports
// false without deleting otherwise.
func (s *UserService) DeleteWithPassword(userID uint, raw string) (bool, error) {
	ok, err := s.CheckCurrentPassword(userID, raw)
	if err != nil || !ok {
		return false, err
	}
	if err := s.Delete(userID); err != nil {
		return false, err
	}
	return true, nil
}

// SendVerificationCode mails a fresh 6-digit code to email and keeps it for the code TTL.
// A new request for the same email replaces the previous code.
func (s *UserService) SendVerificationCode(email string) error {
	email = normalizeEmail(email)
	code := utils.GenerateVerificationCode(verificationCodeLength)
	body := fmt.Sprintf("인증번호는 %s 입니다.\n%d분 안에 입력해주세요.", code, int(s.codeTTL.Minutes()))
	if err := s.mailer.SendMail(email, verificationMailSubject, body); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return s.codes.Save(email, code, s.codeTTL)
}

// CheckVerificationCode consumes the code for email when it matches and
// marks the email as verified for the rest of the code TTL.
func (s *UserService) CheckVerificationCode(email, code string) bool {
	email = normalizeEmail(email)
	if !s.codes.VerifyAndConsume(email, strings.TrimSpace(code)) {
		return false
	}
	if err := s.codes.Save(verifiedKey(email), verifiedMarker, s.codeTTL); err != nil {
		utils.Sugar.Warnf("verification: failed to mark %s verified: %v", email, err)
	}
	return true
}

// ConsumeVerifiedEmail reports whether email passed verification recently. The marker is single use.
func (s *UserService) ConsumeVerifiedEmail(email string) bool {
	return s.codes.VerifyAndConsume(verifiedKey(normalizeEmail(email)), verifiedMarker)
}

func verifiedKey(email string) string {
	return "verified:" + email
}

// FindLoginIDByEmail returns the login id registered with email.
func (s *UserService) FindLoginIDByEmail(email string) (string, error) {
	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrEmailNotRegistered
		}
		return "", err
	}
	return user.LoginID, nil
}

// SendLoginID mails the login id registered with email.
func (s *UserService) SendLoginID(email string) error {
	loginID, err := s.FindLoginIDByEmail(email)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("회원님의 아이디는 %s 입니다.", loginID)
	return s.mailer.SendMail(normalizeEmail(email), findIDMailSubject, body)
}

// ResetPassword replaces the password of the account matching loginID and
// email with a temporary one and mails it. A mail failure keeps the old password.
func (s *UserService) ResetPassword(loginID, email string) error {
	email = normalizeEmail(email)
	var user models.User
	err := s.db.Where("login_id = ? AND email = ?", strings.TrimSpace(loginID), email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountMismatch
		}
		return err
	}

	temp := uuid.NewString()[:temporaryPasswordLength]
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.setPassword(tx, user.ID, temp); err != nil {
			return err
		}
		body := fmt.Sprintf("임시 비밀번호는 %s 입니다.\n로그인 후 비밀번호를 변경해주세요.", temp)
		if err := s.mailer.SendMail(email, resetMailSubject, body); err != nil {
			return fmt.Errorf("send reset mail: %w", err)
		}
		return nil
	})
}
