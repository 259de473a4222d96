package logger

import (
	"io"
	"regexp"
	"strings"
)

const redactedMark = "[REDACTED]"

// minSecretLen keeps short configured values from masking ordinary words.
const minSecretLen = 6

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor masks credentials in log output: provider API keys, bearer
// tokens, passwords inside connection URIs and any configured secret values.
type Redactor struct {
	rules   []redactionRule
	secrets []string
}

// NewRedactor creates a redactor with the default rules. secrets are masked
// wherever they appear verbatim.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{
		rules: []redactionRule{
			{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`), redactedMark},
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redactedMark},
			{regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._~+/=-]+`), "${1}" + redactedMark},
			// user:password@ in PG_URI and similar; the user and host stay readable
			{regexp.MustCompile(`(://[^:/\s"@]+:)[^@\s"]+@`), "${1}" + redactedMark + "@"},
			{regexp.MustCompile(`(?i)((?:api_key|api-key|password)"?\s*[:=]\s*"?)[^\s",}]+`), "${1}" + redactedMark},
		},
	}
	for _, s := range secrets {
		r.AddSecret(s)
	}
	return r
}

// AddPattern adds a custom redaction pattern; whole matches are masked.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{pattern: re, replacement: redactedMark})
	return nil
}

// AddSecret masks a literal value such as a configured API key. Values
// shorter than six characters are ignored.
func (r *Redactor) AddSecret(secret string) {
	if len(secret) < minSecretLen {
		return
	}
	r.secrets = append(r.secrets, secret)
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redactedMark)
	}
	for _, rule := range r.rules {
		s = rule.pattern.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	if _, err := io.WriteString(w.writer, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
