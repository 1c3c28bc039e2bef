package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the config directory, log file names and notification titles.
	AppName = "matflow"

	// DefaultAPIURL is the API base URL used when neither config nor flags provide one.
	DefaultAPIURL = "http://localhost:8000"

	// EnvAPIURL overrides the configured API base URL.
	EnvAPIURL = "MATFLOW_API_URL"

	// EnvConfigPath overrides the default apiconfig location.
	EnvConfigPath = "MATFLOW_CONFIG"
)

// Retry configuration for API calls (go-retryablehttp)
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 4

	// RetryInitialDelay - initial delay before first retry
	RetryInitialDelay = 250 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries
	RetryMaxDelay = 5 * time.Second
)

// Request timeouts
const (
	// DirectoryFetchTimeout bounds a single directory-structure refresh.
	DirectoryFetchTimeout = 30 * time.Second

	// AnalysisTimeout bounds plot and feature-engineering requests. The server
	// renders figures synchronously, so these can take a while on large datasets.
	AnalysisTimeout = 5 * time.Minute

	// ModelAnalysisTimeout bounds optimization and feature selection, which
	// train several models per request.
	ModelAnalysisTimeout = 30 * time.Minute
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios
	EventBusMaxBuffer = 4096
)

// Uploads
const (
	// DefaultUploadConcurrency - files uploaded at once by 'matflow upload'
	DefaultUploadConcurrency = 2
)

// UI Updates
const (
	// ProgressUpdateInterval - interval for progress bar refreshes (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond

	// NotificationMaxLen - longest message shown in a desktop notification
	NotificationMaxLen = 120
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)
