package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"storefront.db"`

	CloudPayments CloudPayments `envPrefix:"CLOUDPAYMENTS_"`
	SMTP          SMTP          `envPrefix:"SMTP_"`
	Notify        Notify
	Push          Push `envPrefix:"PUSH_"`
	Outbox        Outbox
}

type CloudPayments struct {
	PublicID  string `env:"PUBLIC_ID"`
	APISecret string `env:"API_SECRET"`
}

type SMTP struct {
	Host    string `env:"HOST" envDefault:"smtp.mail.ru"`
	Port    int    `env:"PORT" envDefault:"465"`
	User    string `env:"USER"`
	Pass    string `env:"PASS"`
	From    string `env:"FROM"`
	ReplyTo string `env:"REPLY_TO"`
}

type Notify struct {
	OrderEmail      string `env:"ORDER_NOTIFY_EMAIL"`
	SupportEmail    string `env:"ORDER_PUBLIC_CONTACT" envDefault:"support@twiw.store"`
	SiteURL         string `env:"SITE_URL" envDefault:"https://twiw.store"`
	BrandLogoURL    string `env:"BRAND_LOGO_URL"`
	TemplateVersion string `env:"EMAIL_TEMPLATE_VERSION" envDefault:"v1"`
}

type Push struct {
	ExpoURL        string `env:"EXPO_URL" envDefault:"https://exp.host/--/api/v2/push/send"`
	AdminToken     string `env:"ADMIN_TOKEN"`
	TimeoutSeconds int    `env:"TIMEOUT_SECONDS" envDefault:"10"`
}

type Outbox struct {
	PollSeconds int `env:"OUTBOX_POLL_SECONDS" envDefault:"15"`
	BatchSize   int `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	MaxAttempts int `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"6"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
