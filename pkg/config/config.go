package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App             AppConfig
	Service         ServiceConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	Password        PasswordConfig
	RateLimit       RateLimitConfig
	FeatureFlags    FeatureFlagsConfig
	Eventing        EventingConfig
	GCP             GCPConfig
	GCS             GCSConfig
	PubSub          PubSubConfig
	BigQuery        BigQueryConfig
	Outbox          OutboxConfig
	Shop            ShopConfig
	PaymentAccounts PaymentAccountsConfig
	Sendgrid        SendgridConfig
	Twilio          TwilioConfig
	Scheduler       SchedulerConfig
	Notifications   NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Shop.ShippingProtection(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind        string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
	MetricsAddr string `envconfig:"STOREFRONT_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"STOREFRONT_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOREFRONT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOREFRONT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOREFRONT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOREFRONT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOREFRONT_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"STOREFRONT_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	TrackingWindow  time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_TRACKING_WINDOW" default:"1m"`
	TrackingIPLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_TRACKING_IP_LIMIT" default:"30"`
	CouponWindow    time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_COUPON_WINDOW" default:"1m"`
	CouponIPLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_COUPON_IP_LIMIT" default:"20"`
	ReviewWindow    time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_REVIEW_WINDOW" default:"10m"`
	ReviewIPLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_REVIEW_IP_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	WhatsAppEnabled bool `envconfig:"STOREFRONT_WHATSAPP_ENABLED" default:"false"`
	AnalyticsSink   bool `envconfig:"STOREFRONT_ANALYTICS_SINK" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"STOREFRONT_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"STOREFRONT_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	MaxReceiptMB  int    `envconfig:"STOREFRONT_MAX_RECEIPT_MB" default:"10"`
}

// PubSubConfig names the order event topic and the subscriptions fanned
// out from it.
type PubSubConfig struct {
	OrdersTopic              string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" required:"true"`
	NotificationSubscription string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Enabled     bool   `envconfig:"STOREFRONT_BIGQUERY_ENABLED" default:"false"`
	Dataset     string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	OrdersTable string `envconfig:"STOREFRONT_BIGQUERY_ORDERS_TABLE" default:"order_events"`
	AutoCreate  bool   `envconfig:"STOREFRONT_BIGQUERY_AUTO_CREATE" default:"false"`

	// ReportCacheTTL keeps admin sales reports in redis; zero disables it.
	ReportCacheTTL time.Duration `envconfig:"STOREFRONT_ANALYTICS_CACHE_TTL" default:"5m"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"720h"`
}

// ShopConfig carries storefront-wide commercial settings.
type ShopConfig struct {
	Name                   string `envconfig:"STOREFRONT_SHOP_NAME" default:"Kitsune Prints"`
	Currency               string `envconfig:"STOREFRONT_SHOP_CURRENCY" default:"PKR"`
	OrderNumberPrefix      string `envconfig:"STOREFRONT_ORDER_NUMBER_PREFIX" default:"KP"`
	ShippingProtectionCost string `envconfig:"STOREFRONT_SHIPPING_PROTECTION_COST" default:"150"`
	RejectionPolicy        string `envconfig:"STOREFRONT_PAYMENT_REJECTION_POLICY" default:"keep_status"`
	StorefrontURL          string `envconfig:"STOREFRONT_PUBLIC_URL" default:"http://localhost:3000"`
	SupportEmail           string `envconfig:"STOREFRONT_SUPPORT_EMAIL" default:"support@kitsuneprints.pk"`
	DefaultCountryCode     string `envconfig:"STOREFRONT_DEFAULT_COUNTRY_CODE" default:"+92"`
	Timezone               string `envconfig:"STOREFRONT_SHOP_TIMEZONE" default:"Asia/Karachi"`
}

// Location resolves the shop's timezone, falling back to UTC.
func (s ShopConfig) Location() *time.Location {
	if strings.TrimSpace(s.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShippingProtection parses the configured surcharge.
func (s ShopConfig) ShippingProtection() (decimal.Decimal, error) {
	raw := strings.TrimSpace(s.ShippingProtectionCost)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvShippingProtectionCost, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvShippingProtectionCost)
	}
	return amount, nil
}

// PaymentAccountsConfig holds the receiving account details shown to customers.
type PaymentAccountsConfig struct {
	JazzCashNumber    string `envconfig:"STOREFRONT_JAZZCASH_NUMBER"`
	JazzCashTitle     string `envconfig:"STOREFRONT_JAZZCASH_TITLE"`
	EasyPaisaNumber   string `envconfig:"STOREFRONT_EASYPAISA_NUMBER"`
	EasyPaisaTitle    string `envconfig:"STOREFRONT_EASYPAISA_TITLE"`
	BankName          string `envconfig:"STOREFRONT_BANK_NAME"`
	BankAccountTitle  string `envconfig:"STOREFRONT_BANK_ACCOUNT_TITLE"`
	BankAccountNumber string `envconfig:"STOREFRONT_BANK_ACCOUNT_NUMBER"`
	BankIBAN          string `envconfig:"STOREFRONT_BANK_IBAN"`
	USDTAddress       string `envconfig:"STOREFRONT_USDT_TRC20_ADDRESS"`
	CryptoBTCAddress  string `envconfig:"STOREFRONT_CRYPTO_BTC_ADDRESS"`
	CryptoETHAddress  string `envconfig:"STOREFRONT_CRYPTO_ETH_ADDRESS"`
	CODEnabled        bool   `envconfig:"STOREFRONT_COD_ENABLED" default:"true"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"STOREFRONT_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"STOREFRONT_SENDGRID_FROM_EMAIL" default:"orders@kitsuneprints.pk"`
	FromName    string `envconfig:"STOREFRONT_SENDGRID_FROM_NAME" default:"Kitsune Prints"`
}

type TwilioConfig struct {
	AccountSID   string `envconfig:"STOREFRONT_TWILIO_ACCOUNT_SID"`
	AuthToken    string `envconfig:"STOREFRONT_TWILIO_AUTH_TOKEN"`
	WhatsAppFrom string `envconfig:"STOREFRONT_TWILIO_WHATSAPP_FROM"`
}

// SchedulerConfig controls the sweep cadence and age windows.
type SchedulerConfig struct {
	ReminderInterval  time.Duration `envconfig:"STOREFRONT_REMINDER_INTERVAL" default:"6h"`
	ExpiryInterval    time.Duration `envconfig:"STOREFRONT_EXPIRY_INTERVAL" default:"24h"`
	RetentionInterval time.Duration `envconfig:"STOREFRONT_RETENTION_INTERVAL" default:"24h"`
	ReminderAfter     time.Duration `envconfig:"STOREFRONT_REMINDER_AFTER" default:"24h"`
	ExpireAfter       time.Duration `envconfig:"STOREFRONT_EXPIRE_AFTER" default:"48h"`
}

type NotificationsConfig struct {
	EmailMaxAttempts int           `envconfig:"STOREFRONT_EMAIL_MAX_ATTEMPTS" default:"3"`
	EmailBaseDelay   time.Duration `envconfig:"STOREFRONT_EMAIL_BASE_DELAY" default:"1s"`
	AdminEmail       string        `envconfig:"STOREFRONT_ADMIN_NOTIFY_EMAIL"`
	LogRetention     time.Duration `envconfig:"STOREFRONT_NOTIFICATION_LOG_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
