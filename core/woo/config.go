package woo

// Config holds configuration for the upstream commerce API.
type Config struct {
	// BaseURL is the root of the REST API, e.g. https://shop.example.com/wp-json/wc/v3.
	BaseURL string `mapstructure:"base_url" default:""`
	// ConsumerKey is the API consumer key.
	ConsumerKey string `mapstructure:"consumer_key" default:""`
	// ConsumerSecret is the API consumer secret.
	ConsumerSecret string `mapstructure:"consumer_secret" default:""`
	// HourlyQuota is the documented call budget per hour.
	HourlyQuota int `mapstructure:"hourly_quota" default:"3600"`
	// TimeoutSeconds is the per-request timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// MaxRetries bounds retry attempts for throttled and transient failures.
	MaxRetries int `mapstructure:"max_retries" default:"5"`
	// PageSize is the page size used for batch fetches. The source caps it at 100.
	PageSize int `mapstructure:"page_size" default:"100"`
}
