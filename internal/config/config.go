package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/extraction"
)

// EnvVarPrefix prefixes the environment variable of every flag,
// e.g. EXPENSE_TRACKER_SCANNER for --scanner
const EnvVarPrefix = "EXPENSE_TRACKER"

// Scanner backends
const (
	ScannerVision = "vision"
	ScannerGemini = "gemini"
	ScannerOllama = "ollama"
)

const defaultPort = 8080

// Config is the validated startup configuration
type Config struct {
	Port        int
	DBPath      string
	DatabaseURL string
	StoragePath string

	Scanner           string
	VisionCredentials string
	GeminiKey         string
	GeminiModel       string
	OllamaURL         string
	OllamaModel       string
	Preprocess        bool

	Policy            string
	SkipSubtotalLines bool

	AuthUser string
	AuthPass string

	ShowVersion bool
}

type flags struct {
	fs *ff.FlagSet

	port              *int
	dbPath            *string
	databaseURL       *string
	storagePath       *string
	scanner           *string
	visionCredentials *string
	geminiKey         *string
	geminiModel       *string
	ollamaURL         *string
	ollamaModel       *string
	preprocess        *bool
	policy            *string
	skipSubtotalLines *bool
	authUser          *string
	authPass          *string
	showVersion       *bool
}

func newFlags() *flags {
	fs := ff.NewFlagSet("expense-tracker")
	return &flags{
		fs:                fs,
		port:              fs.IntLong("port", defaultPort, "HTTP server port (or set PORT env var)"),
		dbPath:            fs.StringLong("db", "expense-tracker.db", "BoltDB file path, used when no database URL is set"),
		databaseURL:       fs.StringLong("database-url", "", "PostgreSQL connection URL (or set DATABASE_URL env var)"),
		storagePath:       fs.StringLong("storage", "./uploads", "Receipt upload directory"),
		scanner:           fs.StringLong("scanner", ScannerVision, "OCR backend: 'vision', 'gemini' or 'ollama'"),
		visionCredentials: fs.StringLong("vision-credentials", "", "Google Cloud service account JSON (or set GOOGLE_APPLICATION_CREDENTIALS_JSON env var)"),
		geminiKey:         fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:       fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		ollamaURL:         fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:       fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl, minicpm-v)"),
		preprocess:        fs.BoolLong("preprocess", "Grayscale, resize and sharpen receipts before OCR"),
		policy:            fs.StringLong("policy", extraction.KeywordPolicyName, "Total extraction policy: "+strings.Join(extraction.Names(), ", ")),
		skipSubtotalLines: fs.BoolLong("skip-subtotal-lines", "Ignore sous-total/subtotal lines with the keyword policy"),
		authUser:          fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:          fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
		showVersion:       fs.BoolLong("version", "Show version information"),
	}
}

// Load parses args and the EXPENSE_TRACKER_* environment, then applies the
// conventional PORT, DATABASE_URL, GOOGLE_APPLICATION_CREDENTIALS_JSON and
// GEMINI_API_KEY variables to options left unset. The result is not validated.
func Load(args []string) (*Config, error) {
	f := newFlags()
	if err := ff.Parse(f.fs, args, ff.WithEnvVarPrefix(EnvVarPrefix)); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              *f.port,
		DBPath:            *f.dbPath,
		DatabaseURL:       *f.databaseURL,
		StoragePath:       *f.storagePath,
		Scanner:           strings.ToLower(strings.TrimSpace(*f.scanner)),
		VisionCredentials: *f.visionCredentials,
		GeminiKey:         *f.geminiKey,
		GeminiModel:       *f.geminiModel,
		OllamaURL:         *f.ollamaURL,
		OllamaModel:       *f.ollamaModel,
		Preprocess:        *f.preprocess,
		Policy:            strings.ToLower(strings.TrimSpace(*f.policy)),
		SkipSubtotalLines: *f.skipSubtotalLines,
		AuthUser:          *f.authUser,
		AuthPass:          *f.authPass,
		ShowVersion:       *f.showVersion,
	}

	if err := cfg.applyFallbacks(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage describes every flag
func Usage() string {
	return ffhelp.Flags(newFlags().fs).String()
}

func (c *Config) applyFallbacks() error {
	if value := os.Getenv("PORT"); value != "" && c.Port == defaultPort {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", value, err)
		}
		c.Port = port
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.VisionCredentials == "" {
		c.VisionCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")
	}
	if c.GeminiKey == "" {
		c.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	return nil
}

// Validate reports every problem that would stop the server from starting
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		errs = append(errs, errors.New("either a database URL or a BoltDB path is required"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("storage directory is required"))
	}

	switch c.Scanner {
	case ScannerVision:
		if c.VisionCredentials == "" {
			errs = append(errs, errors.New("vision scanner needs credentials: set --vision-credentials or GOOGLE_APPLICATION_CREDENTIALS_JSON"))
		}
	case ScannerGemini:
		if c.GeminiKey == "" {
			errs = append(errs, errors.New("gemini scanner needs an API key: set --gemini-key or GEMINI_API_KEY"))
		}
	case ScannerOllama:
		if c.OllamaURL == "" {
			errs = append(errs, errors.New("ollama scanner needs --ollama-url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scanner %q (valid: %s, %s, %s)", c.Scanner, ScannerVision, ScannerGemini, ScannerOllama))
	}

	if _, err := c.ExtractionPolicy(); err != nil {
		errs = append(errs, err)
	}

	if (c.AuthUser == "") != (c.AuthPass == "") {
		errs = append(errs, errors.New("basic auth needs both --auth-user and --auth-pass"))
	}

	return errors.Join(errs...)
}

// ExtractionPolicy builds the configured total extraction policy
func (c *Config) ExtractionPolicy() (extraction.Policy, error) {
	return extraction.New(c.Policy, extraction.Options{SkipSubtotalLines: c.SkipSubtotalLines})
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// UsePostgres reports whether expenses are stored in PostgreSQL
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}
