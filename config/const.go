package config

const (
	PathHealthCheck = "/"

	PathCreateNewsletter       = "/create_newsletter"
	PathValidateRecipients     = "/validate_recipients"
	PathSendNewsletter         = "/send_newsletter"
	PathRetryNewsletter        = "/retry_newsletter"
	PathRecoverNewsletter      = "/recover_newsletter"
	PathGetNewsletterStatus    = "/get_newsletter_status"
	PathGetNewsletterAnalytics = "/get_newsletter_analytics"

	PathTrackClick = "/click"
	PathTrackOpen  = "/open"
)

const (
	PrefixAdmin    = "/api/admin/v1"
	PrefixTracking = "/t"
)

const (
	DefaultPort   = 9090
	LogLevelDebug = "DEBUG"
)
