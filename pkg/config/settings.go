package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EVMChain configures one EVM chain program and its payout ledger.
type EVMChain struct {
	Name          string
	ChainID       int64
	RPCURL        string
	PrivateKey    string
	MonthlyBudget decimal.Decimal
	Dex           string
	Pools         []string
}

type StellarSettings struct {
	HorizonURL    string
	Secret        string
	BlendContract string
	MonthlyBudget decimal.Decimal
}

type SolanaToken struct {
	Mint     string
	Decimals uint8
}

type SolanaSettings struct {
	RPCURL           string
	PrivateKey       string
	KeystoreDir      string
	KeystoreAddress  string
	KeystorePassword string
	Tokens           []SolanaToken
}

type Settings struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQHost     string
	RabbitMQPort     string

	Port           string
	CronSecret     string
	SlackWebhook   string
	AllowedOrigins []string
	MigrateOnStart bool

	IncentiveToken      string
	FullIncentiveTokens []string
	CompetitionPools    []string
	SourceTimeout       time.Duration

	Chains  []EVMChain
	Stellar StellarSettings
	Solana  SolanaSettings
}

var evmChains = []struct {
	name string
	id   int64
}{
	{"celo", 42220},
	{"optimism", 10},
	{"arbitrum", 42161},
}

// Load reads settings from the environment after applying any .env files found.
func Load(envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	s := &Settings{
		DBHost:     getenv("DB_HOST", "localhost"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		RabbitMQUser:     os.Getenv("RABBITMQ_USER"),
		RabbitMQPassword: os.Getenv("RABBITMQ_PASSWORD"),
		RabbitMQHost:     getenv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getenv("RABBITMQ_PORT", "5672"),

		Port:           getenv("PORT", "8080"),
		CronSecret:     os.Getenv("CRON_SECRET"),
		SlackWebhook:   os.Getenv("SLACK_WEBHOOK"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		MigrateOnStart: getbool("MIGRATE_ON_START"),

		IncentiveToken:      getenv("INCENTIVE_TOKEN", "0x4F604735c1cF31399C6E711D5962b2B3E0225AD3"),
		FullIncentiveTokens: splitList(getenv("FULL_INCENTIVE_TOKENS", "refi")),
		SourceTimeout:       30 * time.Second,
	}

	if v := os.Getenv("SOURCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SOURCE_TIMEOUT: %w", err)
		}
		s.SourceTimeout = d
	}

	for _, c := range evmChains {
		prefix := strings.ToUpper(c.name)
		budget, err := getdecimal(prefix + "_MONTHLY_BUDGET")
		if err != nil {
			return nil, err
		}
		s.Chains = append(s.Chains, EVMChain{
			Name:          c.name,
			ChainID:       c.id,
			RPCURL:        os.Getenv(prefix + "_RPC_URL"),
			PrivateKey:    os.Getenv(prefix + "_PAYOUT_PRIVATE_KEY"),
			MonthlyBudget: budget,
			Dex:           getenv(prefix+"_DEX", "uniswap"),
			Pools:         splitList(strings.ToLower(os.Getenv(prefix + "_POOLS"))),
		})
	}
	s.CompetitionPools = splitList(strings.ToLower(os.Getenv("COMPETITION_POOLS")))

	stellarBudget, err := getdecimal("STELLAR_MONTHLY_BUDGET")
	if err != nil {
		return nil, err
	}
	s.Stellar = StellarSettings{
		HorizonURL:    getenv("STELLAR_HORIZON_URL", "https://horizon.stellar.org"),
		Secret:        os.Getenv("STELLAR_PAYOUT_PRIVATE_KEY"),
		BlendContract: os.Getenv("STELLAR_BLEND_CONTRACT"),
		MonthlyBudget: stellarBudget,
	}

	tokens, err := parseSolanaTokens(os.Getenv("SOLANA_TOKENS"))
	if err != nil {
		return nil, err
	}
	s.Solana = SolanaSettings{
		RPCURL:           os.Getenv("SOLANA_RPC_URL"),
		PrivateKey:       os.Getenv("SOLANA_PAYOUT_PRIVATE_KEY"),
		KeystoreDir:      os.Getenv("SOLANA_KEYSTORE_DIR"),
		KeystoreAddress:  os.Getenv("SOLANA_KEYSTORE_ADDRESS"),
		KeystorePassword: os.Getenv("SOLANA_KEYSTORE_PASSWORD"),
		Tokens:           tokens,
	}

	if s.CronSecret == "" {
		log.Warn("CRON_SECRET is not set, every authenticated request will be rejected")
	}
	return s, nil
}

// DSN is the postgres connection string.
func (s *Settings) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		s.DBHost, s.DBUser, s.DBPassword, s.DBName, s.DBPort, s.DBSSLMode)
}

// RabbitMQURL is the AMQP connection url.
func (s *Settings) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", s.RabbitMQUser, s.RabbitMQPassword, s.RabbitMQHost, s.RabbitMQPort)
}

// parseSolanaTokens reads "mint:decimals,mint:decimals".
func parseSolanaTokens(v string) ([]SolanaToken, error) {
	var tokens []SolanaToken
	for _, item := range splitList(v) {
		mint, dec, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("SOLANA_TOKENS: expected mint:decimals, got %q", item)
		}
		d, err := strconv.ParseUint(dec, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("SOLANA_TOKENS: decimals of %s: %w", mint, err)
		}
		tokens = append(tokens, SolanaToken{Mint: mint, Decimals: uint8(d)})
	}
	return tokens, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func getdecimal(key string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
