// Package config содержит логику чтения конфигурации сервиса комплектации.
package config

import (
	"flag"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса комплектации.
type Config struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	DatabaseURI   string        `env:"DATABASE_URI"`
	DataDir       string        `env:"DATA_DIR"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"30s"`
	SessionSecret string        `env:"SESSION_SECRET"`

	Operator    Operator
	Marketplace Marketplace
	Carrier     Carrier
}

// Operator содержит учётные данные единственного оператора склада.
type Operator struct {
	Login    string `env:"OPERATOR_LOGIN" envDefault:"admin"`
	Password string `env:"OPERATOR_PASSWORD"`
}

// Marketplace содержит параметры доступа к API маркетплейса.
type Marketplace struct {
	BaseURL      string        `env:"BOL_BASE_URL" envDefault:"https://api.bol.com"`
	TokenURL     string        `env:"BOL_TOKEN_URL" envDefault:"https://login.bol.com/token"`
	ClientID     string        `env:"BOL_CLIENT_ID"`
	ClientSecret string        `env:"BOL_CLIENT_SECRET"`
	Transporter  string        `env:"BOL_TRANSPORTER_CODE" envDefault:"TNT"`
	RateInterval time.Duration `env:"MARKETPLACE_RATE_INTERVAL" envDefault:"250ms"`
	Timeout      time.Duration `env:"MARKETPLACE_TIMEOUT" envDefault:"30s"`
}

// Carrier содержит параметры доступа к API перевозчика и адрес отправителя.
type Carrier struct {
	BaseURL            string        `env:"POSTNL_BASE_URL" envDefault:"https://api.postnl.nl"`
	APIKey             string        `env:"POSTNL_API_KEY"`
	CustomerCode       string        `env:"POSTNL_CUSTOMER_CODE"`
	CustomerNumber     string        `env:"POSTNL_CUSTOMER_NUMBER"`
	CollectionLocation string        `env:"POSTNL_COLLECTION_LOCATION"`
	ProductCode        string        `env:"POSTNL_PRODUCT_CODE" envDefault:"3085"`
	MailboxProductCode string        `env:"POSTNL_MAILBOX_PRODUCT_CODE" envDefault:"2928"`
	SenderName         string        `env:"SENDER_NAME"`
	SenderStreet       string        `env:"SENDER_STREET"`
	SenderHouseNumber  string        `env:"SENDER_HOUSE_NUMBER"`
	SenderZipCode      string        `env:"SENDER_ZIP_CODE"`
	SenderCity         string        `env:"SENDER_CITY"`
	Timeout            time.Duration `env:"CARRIER_TIMEOUT" envDefault:"30s"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envDataDir := cfg.DataDir

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, flat files are used when empty")
	flag.StringVar(&cfg.DataDir, "f", "./data", "directory for picking list, labels and reports")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envDataDir != "" {
		cfg.DataDir = envDataDir
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	return cfg, nil
}

// Missing возвращает имена незаполненных параметров маркетплейса.
func (m Marketplace) Missing() []string {
	return missing(map[string]string{
		"BOL_CLIENT_ID":     m.ClientID,
		"BOL_CLIENT_SECRET": m.ClientSecret,
	})
}

// Missing возвращает имена незаполненных параметров перевозчика.
func (c Carrier) Missing() []string {
	return missing(map[string]string{
		"POSTNL_API_KEY":         c.APIKey,
		"POSTNL_CUSTOMER_CODE":   c.CustomerCode,
		"POSTNL_CUSTOMER_NUMBER": c.CustomerNumber,
		"SENDER_NAME":            c.SenderName,
		"SENDER_STREET":          c.SenderStreet,
		"SENDER_HOUSE_NUMBER":    c.SenderHouseNumber,
		"SENDER_ZIP_CODE":        c.SenderZipCode,
		"SENDER_CITY":            c.SenderCity,
	})
}

// Значения-заглушки целиком, без учёта разделителей.
var placeholderValues = []string{"changeme", "placeholder", "todo", "tbd"}

// IsPlaceholder сообщает, что значение пустое или похоже на заглушку из примера
// конфигурации. Сравниваются префикс и значение целиком, а не подстроки, чтобы
// настоящий ключ с «xxx» внутри не считался заглушкой.
func IsPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	if strings.HasPrefix(v, "your_") || strings.HasPrefix(v, "your-") {
		return true
	}

	tokens := strings.FieldsFunc(v, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return true
	}
	onlyX := func(t string) bool { return strings.Trim(t, "x") == "" }
	if !slices.ContainsFunc(tokens, func(t string) bool { return !onlyX(t) }) {
		return true
	}
	return slices.Contains(placeholderValues, strings.Join(tokens, ""))
}

func missing(fields map[string]string) []string {
	var res []string
	for name, v := range fields {
		if IsPlaceholder(v) {
			res = append(res, name)
		}
	}
	slices.Sort(res)
	return res
}
