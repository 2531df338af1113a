package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets have no defaults in code and must come from config/config.json or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database: "mysql" or "sqlite"
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	// Redis for verification codes, token blacklist and feed caching; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// SMTP for verification codes and account recovery mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Image uploads
	UploadDir       string
	UploadURLPath   string
	UploadMaxSizeMB int
	// Orphaned image files are swept every interval once older than the minimum age; 0 disables
	UploadSweepIntervalMin int
	UploadSweepMinAgeMin   int
	// Registration
	VerificationCodeTTLMinutes int
	EmailCodeCooldownSec       int
	RegisterMaxPerIPPerDay     int
	RegisterAttemptCooldownSec int
	// Seeded board categories
	Categories []string
}

// DefaultCategories is the category list seeded when none is configured.
var DefaultCategories = []string{"디자인", "음식", "운동", "취미", "반려동물", "가족", "꽃", "자연", "일기", "예술"}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides (.env fills unset ones)
	if err := loadDotEnv(".env"); err != nil {
		log.Printf("ignoring invalid .env: %v", err)
	}
	var next AppConfig
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &next); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}
	applyDefaults(&next)
	applyEnvOverrides(&next)

	if next.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in config/config.json or the environment")
	}

	cfg = next
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Set replaces the cached configuration after filling defaults. Used by tests and embedders.
func Set(c AppConfig) {
	applyDefaults(&c)
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// loadDotEnv exports variables from a dotenv file without replacing ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// loadJSONConfig reads the grouped JSON config if present. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	if app := section(raw, "app"); app != nil {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.TokenTTLHours = getInt(app, "TokenTTLHours")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.Categories = getStringSlice(app, "Categories")
	}

	if g := section(raw, "gin"); g != nil {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs := section(raw, "database"); dbs != nil {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.SQLitePath = getString(dbs, "SQLitePath")
	}

	if rds := section(raw, "redis"); rds != nil {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if sm := section(raw, "smtp"); sm != nil {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
	}

	if lg := section(raw, "log"); lg != nil {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if up := section(raw, "upload"); up != nil {
		out.UploadDir = getString(up, "Dir")
		out.UploadURLPath = getString(up, "URLPath")
		out.UploadMaxSizeMB = getInt(up, "MaxSizeMB")
		out.UploadSweepIntervalMin = getInt(up, "SweepIntervalMin")
		out.UploadSweepMinAgeMin = getInt(up, "SweepMinAgeMin")
	}

	if rg := section(raw, "register"); rg != nil {
		out.VerificationCodeTTLMinutes = getInt(rg, "CodeTTLMinutes")
		out.EmailCodeCooldownSec = getInt(rg, "EmailCooldownSec")
		out.RegisterMaxPerIPPerDay = getInt(rg, "MaxPerIPPerDay")
		out.RegisterAttemptCooldownSec = getInt(rg, "AttemptCooldownSec")
	}
	return nil
}

func section(raw map[string]any, name string) map[string]any {
	m, _ := raw[name].(map[string]any)
	return m
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getInt(m map[string]any, key string) int {
	switch t := m[key].(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func getStringSlice(m map[string]any, key string) []string {
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	res := make([]string, 0, len(arr))
	for _, it := range arr {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			res = append(res, strings.TrimSpace(s))
		}
	}
	return res
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBName == "" {
		c.DBName = "nasda"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "nasda.db"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.SMTPFromName == "" {
		c.SMTPFromName = "Nasda"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.UploadURLPath == "" {
		c.UploadURLPath = "/uploads/"
	}
	if !strings.HasSuffix(c.UploadURLPath, "/") {
		c.UploadURLPath += "/"
	}
	if c.UploadSweepMinAgeMin == 0 {
		c.UploadSweepMinAgeMin = 60
	}
	if c.UploadMaxSizeMB == 0 {
		c.UploadMaxSizeMB = 10
	}
	if c.VerificationCodeTTLMinutes == 0 {
		c.VerificationCodeTTLMinutes = 10
	}
	if c.EmailCodeCooldownSec == 0 {
		c.EmailCodeCooldownSec = 60
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), DefaultCategories...)
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			*dst = mustParseInt(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	setString("APP_PORT", &c.AppPort)
	setString("JWT_SECRET", &c.JWTSecret)
	setInt("TOKEN_TTL_HOURS", &c.TokenTTLHours)
	setInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	setString("GIN_MODE", &c.GinMode)
	setString("GIN_PATH", &c.GinPath)

	setString("DB_DRIVER", &c.DBDriver)
	setString("DATABASE_URI", &c.DatabaseURI)
	setString("DB_HOST", &c.DBHost)
	setString("DB_PORT", &c.DBPort)
	setString("DB_USER", &c.DBUser)
	setString("DB_PASSWORD", &c.DBPassword)
	setString("DB_NAME", &c.DBName)
	setString("SQLITE_PATH", &c.SQLitePath)

	setString("REDIS_HOST", &c.RedisHost)
	setInt("REDIS_PORT", &c.RedisPort)
	setInt("REDIS_DB", &c.RedisDB)
	setString("REDIS_PASSWORD", &c.RedisPassword)

	setString("SMTP_HOST", &c.SMTPHost)
	setInt("SMTP_PORT", &c.SMTPPort)
	setString("SMTP_USERNAME", &c.SMTPUsername)
	setString("SMTP_PASSWORD", &c.SMTPPassword)
	setString("SMTP_FROM", &c.SMTPFrom)
	setString("SMTP_FROM_NAME", &c.SMTPFromName)
	setBool("SMTP_TLS", &c.SMTPTLS)

	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_PATH", &c.LogPath)
	setInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	setBool("LOG_COMPRESS", &c.LogCompress)

	setString("UPLOAD_DIR", &c.UploadDir)
	setString("UPLOAD_URL_PATH", &c.UploadURLPath)
	setInt("UPLOAD_MAX_SIZE_MB", &c.UploadMaxSizeMB)
	setInt("UPLOAD_SWEEP_INTERVAL_MIN", &c.UploadSweepIntervalMin)
	setInt("UPLOAD_SWEEP_MIN_AGE_MIN", &c.UploadSweepMinAgeMin)

	setInt("VERIFICATION_CODE_TTL_MINUTES", &c.VerificationCodeTTLMinutes)
	setInt("EMAIL_CODE_COOLDOWN_SEC", &c.EmailCodeCooldownSec)
	setInt("REGISTER_MAX_PER_IP_PER_DAY", &c.RegisterMaxPerIPPerDay)
	setInt("REGISTER_ATTEMPT_COOLDOWN_SEC", &c.RegisterAttemptCooldownSec)
	c.Categories = readListEnv("CATEGORIES", c.Categories)

	if !strings.HasSuffix(c.UploadURLPath, "/") {
		c.UploadURLPath += "/"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
