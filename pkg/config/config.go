package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/randstr"
	"github.com/go-training/authz-server/pkg/store"
)

const (
	defaultTWSServerOrigin = "http://localhost:8001"
	defaultSNSOrigin       = "http://localhost:3000"
	defaultClientScope     = "read write delete"
	generatedClientIDLen   = 16

	defaultTokenExpireHours = 12
	defaultRequestTTL       = 10 * time.Minute
	defaultCodeTTL          = 10 * time.Minute
	defaultSweepInterval    = time.Minute

	defaultFlowStore  = "memory"
	defaultTokenStore = "memory"
	defaultRedisAddr  = "localhost:6379"

	defaultDBHost            = "127.0.0.1"
	defaultDBPort            = 3306
	defaultDBUser            = "authz"
	defaultDBPassword        = ""
	defaultDBName            = "authz"
	defaultDBMaxOpenConns    = 10
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = time.Minute * 15
	defaultDBPingTimeout     = 5 * time.Second

	defaultTokenRateLimit = 10
	defaultTokenRateBurst = 20
)

// Config is the process-wide configuration. It is loaded once at startup and
// handed to the components that need it.
type Config struct {
	Origin  Origins
	Clients []ClientConfig
	Auth    AuthConfig
	Flow    FlowStoreConfig
	Tokens  TokenStoreConfig
	Limits  LimitConfig
	Users   []SeedUser
}

// SeedUser is an account created at startup when it does not exist yet.
type SeedUser struct {
	Name     string
	Password string
}

// Origins are the externally visible base URLs of the cooperating services.
type Origins struct {
	// Self is the origin this server is reached at.
	Self string
	// SNS is the social network front end, which also hosts the token endpoint used by the login page.
	SNS string
	// TWS is the web services back end.
	TWS string
}

// ClientConfig describes one registered OAuth client.
type ClientConfig struct {
	Name         string
	ID           string
	Secret       string
	RedirectURIs []string
	Scope        string
}

// AuthConfig holds lifetimes and grant behaviour.
type AuthConfig struct {
	TokenExpireHours int
	RequestTTL       time.Duration
	CodeTTL          time.Duration
	SweepInterval    time.Duration
	// PersistClientCredentialsTokens stores client_credentials tokens in the token store.
	PersistClientCredentialsTokens bool
}

// FlowStoreConfig selects the pending request and authorization code backend.
type FlowStoreConfig struct {
	Type          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TokenStoreConfig selects the token and user backend.
type TokenStoreConfig struct {
	Type     string
	Database DBConfig
}

// DBConfig holds the MySQL connection and pool settings.
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// LimitConfig holds the token endpoint rate limit per client IP.
type LimitConfig struct {
	TokenRate  int
	TokenBurst int
	// TrustedProxies lists the reverse proxies allowed to set X-Forwarded-For.
	// Empty means forwarded headers are ignored.
	TrustedProxies []string
}

// TokenTTL is the lifetime of issued access and session tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenExpireHours) * time.Hour
}

// TokenEndpoint is the URL the login page uses to obtain its own service token.
func (o Origins) TokenEndpoint() string {
	return strings.TrimRight(o.SNS, "/") + "/token"
}

// RegisteredClients converts the client configuration into registry entries.
func (c *Config) RegisteredClients() []core.Client {
	clients := make([]core.Client, 0, len(c.Clients))
	for _, cc := range c.Clients {
		clients = append(clients, core.Client{
			ID:           cc.ID,
			Secret:       cc.Secret,
			Name:         cc.Name,
			RedirectURIs: append([]string(nil), cc.RedirectURIs...),
			Scope:        core.ParseScope(cc.Scope),
		})
	}
	return clients
}

// FindClient returns the client configuration with the given name.
func (c *Config) FindClient(name string) (ClientConfig, bool) {
	for _, cc := range c.Clients {
		if cc.Name == name {
			return cc, true
		}
	}
	return ClientConfig{}, false
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	origins := loadOriginsFromEnv()

	clients, err := loadClientsFromEnv(origins)
	if err != nil {
		return nil, err
	}

	authCfg, err := loadAuthConfigFromEnv()
	if err != nil {
		return nil, err
	}

	flowCfg, err := loadFlowStoreConfigFromEnv()
	if err != nil {
		return nil, err
	}

	tokenCfg, err := loadTokenStoreConfigFromEnv()
	if err != nil {
		return nil, err
	}

	limits, err := loadLimitConfigFromEnv()
	if err != nil {
		return nil, err
	}

	users, err := loadSeedUsersFromEnv()
	if err != nil {
		return nil, err
	}

	return &Config{
		Origin:  origins,
		Clients: clients,
		Auth:    *authCfg,
		Flow:    *flowCfg,
		Tokens:  *tokenCfg,
		Limits:  *limits,
		Users:   users,
	}, nil
}

func loadOriginsFromEnv() Origins {
	sns := getEnvOrDefault("SNS_ORIGIN", defaultSNSOrigin)
	self := getEnvOrDefault("ORIGIN", "")
	if self == "" {
		self = sns
	}
	return Origins{
		Self: self,
		SNS:  sns,
		TWS:  getEnvOrDefault("TWS_SERVER_ORIGIN", defaultTWSServerOrigin),
	}
}

const (
	// SNSClientName is the display name of the social network client.
	SNSClientName = "Tmitter"
	// TWSClientName is the display name of the web services client.
	TWSClientName = "TMCIT Web Services"
)

func loadClientsFromEnv(origins Origins) ([]ClientConfig, error) {
	snsID, err := getEnvOrRandom("SNS_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	twsID, err := getEnvOrRandom("TWS_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	clients := []ClientConfig{
		{
			Name:         SNSClientName,
			ID:           snsID,
			Secret:       getEnvOrDefault("SNS_SECRET_ID", ""),
			RedirectURIs: []string{strings.TrimRight(origins.SNS, "/") + "/callback"},
			Scope:        defaultClientScope,
		},
		{
			Name:         TWSClientName,
			ID:           twsID,
			Secret:       getEnvOrDefault("TWS_SECRET_ID", ""),
			RedirectURIs: []string{strings.TrimRight(origins.TWS, "/") + "/api/v1/oauth/callback"},
			Scope:        defaultClientScope,
		},
	}

	if clients[0].ID == clients[1].ID {
		return nil, fmt.Errorf("SNS_CLIENT_ID and TWS_CLIENT_ID must differ")
	}

	return clients, nil
}

func loadAuthConfigFromEnv() (*AuthConfig, error) {
	hours, err := getEnvAsInt("TOKEN_EXPIRE_HOURS", defaultTokenExpireHours)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_EXPIRE_HOURS: %w", err)
	}
	if hours <= 0 {
		return nil, fmt.Errorf("TOKEN_EXPIRE_HOURS must be greater than zero")
	}

	requestTTL, err := getEnvAsDuration("AUTH_REQUEST_TTL", defaultRequestTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_REQUEST_TTL: %w", err)
	}
	if requestTTL <= 0 {
		return nil, fmt.Errorf("AUTH_REQUEST_TTL must be greater than zero")
	}

	codeTTL, err := getEnvAsDuration("AUTH_CODE_TTL", defaultCodeTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_CODE_TTL: %w", err)
	}
	if codeTTL <= 0 {
		return nil, fmt.Errorf("AUTH_CODE_TTL must be greater than zero")
	}

	sweep, err := getEnvAsDuration("SWEEP_INTERVAL", defaultSweepInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	if sweep <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be greater than zero")
	}

	persist, err := getEnvAsBool("PERSIST_CLIENT_CREDENTIALS_TOKENS", false)
	if err != nil {
		return nil, fmt.Errorf("invalid PERSIST_CLIENT_CREDENTIALS_TOKENS: %w", err)
	}

	return &AuthConfig{
		TokenExpireHours:               hours,
		RequestTTL:                     requestTTL,
		CodeTTL:                        codeTTL,
		SweepInterval:                  sweep,
		PersistClientCredentialsTokens: persist,
	}, nil
}

func loadFlowStoreConfigFromEnv() (*FlowStoreConfig, error) {
	storeType := strings.ToLower(getEnvOrDefault("FLOW_STORE", defaultFlowStore))
	if !store.StoreType(storeType).IsValid() {
		return nil, fmt.Errorf("FLOW_STORE must be memory or redis, got %q", storeType)
	}

	redisDB, err := getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if redisDB < 0 {
		return nil, fmt.Errorf("REDIS_DB must be zero or a positive integer")
	}

	return &FlowStoreConfig{
		Type:          storeType,
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", defaultRedisAddr),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
	}, nil
}

func loadTokenStoreConfigFromEnv() (*TokenStoreConfig, error) {
	storeType := strings.ToLower(getEnvOrDefault("TOKEN_STORE", defaultTokenStore))
	if storeType != "memory" && storeType != "mysql" {
		return nil, fmt.Errorf("TOKEN_STORE must be memory or mysql, got %q", storeType)
	}

	dbCfg, err := loadDBConfigFromEnv()
	if err != nil {
		return nil, err
	}

	return &TokenStoreConfig{
		Type:     storeType,
		Database: *dbCfg,
	}, nil
}

func loadDBConfigFromEnv() (*DBConfig, error) {
	port, err := getEnvAsInt("DB_PORT", defaultDBPort)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := getEnvAsInt("DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := getEnvAsInt("DB_MAX_IDLE_CONNS", defaultDBMaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := getEnvAsDuration("DB_CONN_MAX_LIFETIME", defaultDBConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	pingTimeout, err := getEnvAsDuration("DB_PING_TIMEOUT", defaultDBPingTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PING_TIMEOUT: %w", err)
	}

	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("DB_PORT must be between 1 and 65535")
	}

	if maxOpenConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be greater than zero")
	}

	if maxIdleConns < 0 {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS must be zero or a positive integer")
	}

	if connMaxLifetime < 0 {
		return nil, fmt.Errorf("DB_CONN_MAX_LIFETIME must be zero or a positive duration")
	}

	if pingTimeout <= 0 {
		return nil, fmt.Errorf("DB_PING_TIMEOUT must be greater than zero")
	}

	return &DBConfig{
		Host:            getEnvOrDefault("DB_HOST", defaultDBHost),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", defaultDBUser),
		Password:        getEnvOrDefault("DB_PASSWORD", defaultDBPassword),
		Name:            getEnvOrDefault("DB_NAME", defaultDBName),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		PingTimeout:     pingTimeout,
	}, nil
}

func loadLimitConfigFromEnv() (*LimitConfig, error) {
	rate, err := getEnvAsInt("TOKEN_RATE_LIMIT", defaultTokenRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_RATE_LIMIT: %w", err)
	}
	burst, err := getEnvAsInt("TOKEN_RATE_BURST", defaultTokenRateBurst)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_RATE_BURST: %w", err)
	}
	if rate <= 0 || burst <= 0 {
		return nil, fmt.Errorf("TOKEN_RATE_LIMIT and TOKEN_RATE_BURST must be greater than zero")
	}

	proxies, err := parseTrustedProxies(getEnvOrDefault("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, err
	}

	return &LimitConfig{TokenRate: rate, TokenBurst: burst, TrustedProxies: proxies}, nil
}

// parseTrustedProxies splits a comma separated list of IPs and CIDRs.
func parseTrustedProxies(raw string) ([]string, error) {
	var proxies []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", p, err)
			}
		} else if net.ParseIP(p) == nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", p)
		}
		proxies = append(proxies, p)
	}
	return proxies, nil
}

// loadSeedUsersFromEnv parses SEED_USERS, a comma separated list of name:password pairs.
func loadSeedUsersFromEnv() ([]SeedUser, error) {
	raw := getEnvOrDefault("SEED_USERS", "")
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var users []SeedUser
	for _, pair := range strings.Split(raw, ",") {
		name, password, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || password == "" {
			return nil, fmt.Errorf("SEED_USERS entries must look like name:password")
		}
		users = append(users, SeedUser{Name: name, Password: password})
	}
	return users, nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvOrRandom falls back to a freshly generated identifier, so an unset
// client id can never be guessed.
func getEnvOrRandom(key string) (string, error) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value, nil
	}
	value, err := randstr.String(generatedClientIDLen)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, err
	}

	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return defaultValue, nil
	}

	return strconv.ParseBool(valueStr)
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, err
	}

	return value, nil
}
