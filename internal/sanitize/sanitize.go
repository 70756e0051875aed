// Package sanitize masks sensitive data before it reaches logs: WhatsApp
// ids (phone numbers), emails, API keys and bearer tokens that upstream
// error bodies sometimes echo back.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// WhatsApp ids are E.164 numbers without the plus sign.
	phonePattern = regexp.MustCompile(`\+?[1-9]\d{6,14}`)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token|password|auth)[=:\s"']*([\w-]{16,})`)

	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[\w.-]+`)

	// OpenAI style secret keys.
	secretKeyPattern = regexp.MustCompile(`sk-[\w-]{16,}`)
)

// Sanitizer applies a set of masking rules to free text.
type Sanitizer struct {
	patterns []patternConfig
}

type patternConfig struct {
	pattern     *regexp.Regexp
	replacement func(string) string
	enabled     bool
}

// Config selects the masking rules.
type Config struct {
	MaskPhones       bool
	MaskEmails       bool
	MaskAPIKeys      bool
	MaskBearerTokens bool
}

// DefaultConfig enables every rule.
func DefaultConfig() Config {
	return Config{
		MaskPhones:       true,
		MaskEmails:       true,
		MaskAPIKeys:      true,
		MaskBearerTokens: true,
	}
}

// New creates a Sanitizer with the given configuration.
func New(cfg Config) *Sanitizer {
	return &Sanitizer{
		patterns: []patternConfig{
			// Token rules run first so key material is not half-masked as a phone.
			{pattern: bearerPattern, replacement: maskBearer, enabled: cfg.MaskBearerTokens},
			{pattern: secretKeyPattern, replacement: maskSecretKey, enabled: cfg.MaskAPIKeys},
			{pattern: apiKeyPattern, replacement: maskAPIKey, enabled: cfg.MaskAPIKeys},
			{pattern: emailPattern, replacement: maskEmail, enabled: cfg.MaskEmails},
			{pattern: phonePattern, replacement: maskPhone, enabled: cfg.MaskPhones},
		},
	}
}

// NewDefault creates a sanitizer with every rule enabled.
func NewDefault() *Sanitizer {
	return New(DefaultConfig())
}

var defaultSanitizer = NewDefault()

// String masks all sensitive data in input.
func (s *Sanitizer) String(input string) string {
	result := input
	for _, p := range s.patterns {
		if p.enabled {
			result = p.pattern.ReplaceAllStringFunc(result, p.replacement)
		}
	}
	return result
}

// Error masks an error message.
func (s *Sanitizer) Error(err error) string {
	if err == nil {
		return ""
	}
	return s.String(err.Error())
}

// Headers masks HTTP headers, redacting credentials and signatures outright.
func (s *Sanitizer) Headers(headers map[string][]string) map[string][]string {
	result := make(map[string][]string, len(headers))
	for k, vals := range headers {
		if isSensitiveHeader(strings.ToLower(k)) {
			result[k] = []string{"[REDACTED]"}
			continue
		}
		sanitized := make([]string, len(vals))
		for i, v := range vals {
			sanitized[i] = s.String(v)
		}
		result[k] = sanitized
	}
	return result
}

func maskPhone(phone string) string {
	if len(phone) <= 5 {
		return "****"
	}
	// Keep first 3 and last 2 characters
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "[email]"
	}
	if at <= 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}

func maskAPIKey(match string) string {
	parts := apiKeyPattern.FindStringSubmatch(match)
	if len(parts) >= 2 {
		// Preserve the key name but mask the value
		prefix := strings.TrimSuffix(match, parts[len(parts)-1])
		return prefix + "[REDACTED]"
	}
	return "[REDACTED-KEY]"
}

func maskSecretKey(string) string {
	return "sk-[REDACTED]"
}

func maskBearer(string) string {
	return "Bearer [REDACTED]"
}

func isSensitiveHeader(header string) bool {
	switch header {
	case "authorization", "proxy-authorization", "cookie", "set-cookie",
		"x-api-key", "x-hub-signature", "x-hub-signature-256":
		return true
	}
	return false
}

// Phone masks a WhatsApp id for logging.
func Phone(phone string) string {
	return maskPhone(phone)
}

// Text masks free text with the default rules.
func Text(s string) string {
	return defaultSanitizer.String(s)
}

// Headers masks HTTP headers with the default rules.
func Headers(headers map[string][]string) map[string][]string {
	return defaultSanitizer.Headers(headers)
}

// Error masks an error message with the default rules.
func Error(err error) string {
	return defaultSanitizer.Error(err)
}

// APIKey masks a configured credential, keeping its first and last 4 characters.
func APIKey(key string) string {
	if len(key) <= 8 {
		return "[REDACTED]"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
