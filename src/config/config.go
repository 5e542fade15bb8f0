package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const insecureDownloadSecret = "change-me-download-token-secret-minimum-32-bytes"

type AppConfig struct {
	Port         string
	LogLevel     string
	DatabasePath string
	OutputDir    string

	WorkbookPath    string
	SheetLayoutPath string

	LedgerScanLimit      int
	LedgerNameThreshold  float64
	RevenueToken         string
	ExpenseToken         string
	ConsistencyTolerance string

	// AllowGenerationDespiteDiscrepancy keeps a balance discrepancy
	// informational. When false, generation is refused.
	AllowGenerationDespiteDiscrepancy bool
	ResultCacheTTL                    time.Duration

	TaskWorkers   int
	TaskQueueSize int
	TaskTimeLimit time.Duration
	TaskRetention time.Duration

	DownloadTokenSecret string
	DownloadTokenExpiry time.Duration

	AdminUser         string
	AdminPasswordHash string

	AlertProvider  string
	AlertRecipient string
	AlertThreshold int

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail string
	SenderName  string

	CORSOrigins []string

	// Proxies (IPs or CIDRs) allowed to set X-Forwarded-For. Empty trusts nobody.
	TrustedProxies []string

	// Requests per minute, per client, per route.
	SearchRateLimit   int
	GenerateRateLimit int
	AsyncRateLimit    int
	DownloadRateLimit int
	AdminRateLimit    int

	CompanyName  string
	CompanyCNPJ  string
	CalendarYear int
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	downloadSecret := getEnv("DOWNLOAD_TOKEN_SECRET", insecureDownloadSecret)
	if downloadSecret == insecureDownloadSecret {
		log.Println("WARNING: Using default insecure DOWNLOAD_TOKEN_SECRET. Set DOWNLOAD_TOKEN_SECRET environment variable for production.")
	}
	if len(downloadSecret) < 32 {
		log.Fatalf("FATAL: DOWNLOAD_TOKEN_SECRET must be at least 32 bytes long. Current length: %d", len(downloadSecret))
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "10000"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./declarations.db"),
		OutputDir:    getEnv("OUTPUT_DIR", "./output"),

		WorkbookPath:    getEnv("WORKBOOK_PATH", "IR 2024 - NÃO ALTERAR.xlsx"),
		SheetLayoutPath: getEnv("SHEET_LAYOUT_PATH", ""),

		LedgerScanLimit:      getEnvAsInt("LEDGER_SCAN_LIMIT", 0),
		LedgerNameThreshold:  getEnvAsFloat("LEDGER_NAME_THRESHOLD", 0.9),
		RevenueToken:         getEnv("REVENUE_TOKEN", "RECEITA BRUTA"),
		ExpenseToken:         getEnv("EXPENSE_TOKEN", "ATIVO CIRCULANTE"),
		ConsistencyTolerance: getEnv("CONSISTENCY_TOLERANCE", "0.01"),

		AllowGenerationDespiteDiscrepancy: getEnvAsBool("ALLOW_GENERATION_DESPITE_DISCREPANCY", true),
		ResultCacheTTL:                    getEnvAsDuration("RESULT_CACHE_TTL", time.Hour),

		TaskWorkers:   getEnvAsInt("TASK_WORKERS", 2),
		TaskQueueSize: getEnvAsInt("TASK_QUEUE_SIZE", 32),
		TaskTimeLimit: getEnvAsDuration("TASK_TIME_LIMIT", 5*time.Minute),
		TaskRetention: getEnvAsDuration("TASK_RETENTION", time.Hour),

		DownloadTokenSecret: downloadSecret,
		DownloadTokenExpiry: getEnvAsDuration("DOWNLOAD_TOKEN_EXPIRY", 30*time.Minute),

		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		AlertProvider:  getEnv("ALERT_PROVIDER", "mock"),
		AlertRecipient: getEnv("ALERT_RECIPIENT", ""),
		AlertThreshold: getEnvAsInt("ALERT_THRESHOLD", 3),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail: getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:  getEnv("SENDER_NAME", "Declarações IR"),

		CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),

		SearchRateLimit:   getEnvAsInt("RATE_LIMIT_SEARCH", 10),
		GenerateRateLimit: getEnvAsInt("RATE_LIMIT_GENERATE", 5),
		AsyncRateLimit:    getEnvAsInt("RATE_LIMIT_ASYNC", 3),
		DownloadRateLimit: getEnvAsInt("RATE_LIMIT_DOWNLOAD", 20),
		AdminRateLimit:    getEnvAsInt("RATE_LIMIT_ADMIN", 5),

		CompanyName:  getEnv("COMPANY_NAME", ""),
		CompanyCNPJ:  getEnv("COMPANY_CNPJ", ""),
		CalendarYear: getEnvAsInt("CALENDAR_YEAR", 2024),
	}

	if Cfg.AdminPasswordHash == "" {
		log.Println("WARNING: ADMIN_PASSWORD_HASH not set. Admin endpoints will reject every request.")
	}
	if Cfg.AlertProvider != "mock" && Cfg.AlertRecipient == "" {
		log.Println("WARNING: ALERT_RECIPIENT not set. Operator alerts will only be logged.")
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Workbook=%s, AlertProvider=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.WorkbookPath, Cfg.AlertProvider)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList splits a comma-separated variable, dropping blank items.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
