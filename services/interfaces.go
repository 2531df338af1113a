package services

import "time"

// ImageStorage persists uploaded images and resolves them by public URL.
type ImageStorage interface {
	Store(upload *ImageUpload) (string, error)
	DeleteByURL(url string) error
}

// Mailer delivers plain text mail.
type Mailer interface {
	SendMail(to, subject, body string) error
}

// PasswordHasher hashes passwords and verifies them with the scheme's comparison function.
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Matches(raw, hash string) bool
}

// CodeStore keeps expiring verification codes keyed per verification flow.
type CodeStore interface {
	Save(key, code string, ttl time.Duration) error
	VerifyAndConsume(key, code string) bool
}

// ImageUpload is one file from a multipart request.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IsEmpty reports whether the upload carries no bytes. A nil upload is empty.
func (u *ImageUpload) IsEmpty() bool {
	return u == nil || len(u.Data) == 0
}

func hasUpload(files []*ImageUpload) bool {
	for _, f := range files {
		if !f.IsEmpty() {
			return true
		}
	}
	return false
}
