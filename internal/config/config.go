package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. The token metadata and the admin identity
// play the role of constructor arguments: they are read once at startup
// and fixed for the life of the process, like a deployed contract.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	AdminEmail   string // the account that registers as ADMIN
	AdminAddress string // the admin's fixed sale account address

	TokenName        string // token ledger name
	TokenSymbol      string // token ledger symbol
	TokenDecimals    int    // token display precision
	TokenTotalSupply uint64 // fixed supply, in base units
}

// Load reads configuration values from the environment, after loading
// an optional .env file. Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load() // .env is optional; real env vars win

	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		AdminEmail:   must("SALE_ADMIN_EMAIL"),
		AdminAddress: must("SALE_ADMIN_ADDRESS"),

		TokenName:        must("TOKEN_NAME"),
		TokenSymbol:      must("TOKEN_SYMBOL"),
		TokenDecimals:    mustInt("TOKEN_DECIMALS"),
		TokenTotalSupply: mustUint("TOKEN_TOTAL_SUPPLY"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// mustUint is like must() but parses an unsigned 64-bit integer, used
// for token amounts.
func mustUint(key string) uint64 {
	s := must(key)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.Fatalf("invalid uint for %s: %q", key, s)
	}
	return n
}
