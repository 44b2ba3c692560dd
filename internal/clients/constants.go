package clients

import "time"

const (
	IDENTITY_TOOLKIT_URL  = "https://identitytoolkit.googleapis.com/v1"
	SECURE_TOKEN_URL      = "https://securetoken.googleapis.com/v1"
	IDENTITY_HTTP_TIMEOUT = 10 * time.Second

	VALKEY_SESSION_KEY_PREFIX = "moodjournal:session:"
	VALKEY_SESSION_TTL        = 30 * 24 * time.Hour
	VALKEY_RETRIES            = 3
	VALKEY_RETRY_DELAY        = 250 * time.Millisecond

	USER_AGENT = "moodjournal-client/1.0 (+https://github.com/spacesedan/moodjournal)"
)
