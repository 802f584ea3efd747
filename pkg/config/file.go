package config

import (
	"bytes"
	"text/template"
)

var configFileTmpl = template.Must(template.New("config").Parse(`# Outpost client configuration

# The API token. Prefer the OUTPOST_API_TOKEN environment variable.
#api_token: ""

# The API endpoint.
base_url: "{{ .BaseURL }}"

# Seconds between status checks of long running operations.
poll_interval: {{ .PollInterval }}

# Network timeouts, in seconds. A value of 0 means no timeout.
timeout:
  connect: {{ .Timeout.Connect }}
  read: {{ .Timeout.Read }}
  write: {{ .Timeout.Write }}
  pool: {{ .Timeout.Pool }}
  idle: {{ .Timeout.Idle }}

# Retry policy for idempotent requests (HEAD, GET, PUT, DELETE, OPTIONS, TRACE).
retry:
  # Total number of attempts, including the first one.
  max_attempts: {{ .Retry.MaxAttempts }}
  # Base of the exponential backoff, in seconds.
  backoff_factor: {{ .Retry.BackoffFactor }}
  # Symmetric jitter ratio, between 0 and 0.5.
  jitter_ratio: {{ .Retry.JitterRatio }}
  # Upper bound of a single wait, in seconds.
  max_backoff_wait: {{ .Retry.MaxBackoffWait }}
  # Retry network failures that happen before a response is received.
  connection_errors: {{ .Retry.ConnectionErrors }}

# Git LFS configuration.
lfs:
  # The LFS server. Leave empty to use the API endpoint.
  #url: "{{ .LFS.URL }}"
  # Accepted transfer adapters, most preferred first.
  transfer_adapters:{{ range .LFS.TransferAdapters }}
    - "{{ . }}"{{ end }}

# Logging configuration.
log:
  # Log format to use. Valid values are "json", "logfmt", and "text".
  format: "{{ .Log.Format }}"
  # Minimum level. Valid values are "debug", "info", "warn" and "error".
  level: "{{ .Log.Level }}"
  # Time format for the log "timestamp" field.
  # Should be described in Golang's time format.
  time_format: "{{ .Log.TimeFormat }}"
  # Path to the log file. Leave empty to write to stderr.
  #path: "{{ .Log.Path }}"
`))

func newConfigFile(cfg *Config) string {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var b bytes.Buffer
	configFileTmpl.Execute(&b, cfg) // nolint: errcheck
	return b.String()
}
