// Package inputscan detects SQL-injection and cross-site-scripting probes in
// request parameters before they reach business logic.
//
// Detection is signature-based and fail-closed: any match denies the request.
// The signatures target unambiguous attack shapes (tautologies, stacked
// queries, script tags) rather than anything that merely looks odd, so
// legitimate text such as surnames with apostrophes passes untouched.
package inputscan

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"

	"stayguard/internal/guard/metrics"
	"stayguard/internal/guard/models"
	"stayguard/internal/guard/observability"
)

// CategorySQLI and CategoryXSS label signature families for metrics and
// audit events.
const (
	CategorySQLI = "sqli"
	CategoryXSS  = "xss"
)

type signature struct {
	category string
	name     string
	re       *regexp.Regexp
}

// Signatures are compiled once at package init; a typo here is a programmer
// error and should crash at startup, not at scan time.
var signatures = []signature{
	{CategorySQLI, "boolean_tautology", regexp.MustCompile(`(?i)\b(or|and)\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+`)},
	{CategorySQLI, "union_select", regexp.MustCompile(`(?i)\bunion(\s|\+)+(all(\s|\+)+)?select\b`)},
	{CategorySQLI, "insert_into", regexp.MustCompile(`(?i)\binsert\s+into\b`)},
	{CategorySQLI, "delete_from", regexp.MustCompile(`(?i)\bdelete\s+from\b`)},
	{CategorySQLI, "drop_table", regexp.MustCompile(`(?i)\bdrop\s+table\b`)},
	{CategorySQLI, "update_set", regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`)},
	{CategorySQLI, "exec_procedure", regexp.MustCompile(`(?i)\bexec(\s|\+)+(s|x)p\w+`)},
	{CategorySQLI, "quote_breakout", regexp.MustCompile(`(?i)('|%27)\s*(or\b|--|;)`)},
	{CategorySQLI, "stacked_comment", regexp.MustCompile(`;\s*--`)},
	{CategoryXSS, "script_tag", regexp.MustCompile(`(?i)<\s*script`)},
	{CategoryXSS, "iframe_tag", regexp.MustCompile(`(?i)<\s*iframe`)},
	{CategoryXSS, "javascript_uri", regexp.MustCompile(`(?i)javascript\s*:`)},
	{CategoryXSS, "event_handler", regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus)\s*=`)},
}

// Scanner matches request input against the signature set. Stateless and
// safe for concurrent use.
type Scanner struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Scanner instance.
type Option func(*Scanner)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *Scanner) {
		sc.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(sc *Scanner) {
		sc.metrics = m
	}
}

// New creates a scanner over the built-in signature set.
func New(opts ...Option) *Scanner {
	sc := &Scanner{}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Scan checks the request path and every parameter value against the
// signature set. The first match denies the whole request; parameter names
// are scanned too, since attack payloads show up there as well.
func (sc *Scanner) Scan(ctx context.Context, identity, path string, params url.Values) models.Verdict {
	if sig := match(path); sig != nil {
		return sc.deny(ctx, identity, sig, "path")
	}

	for name, values := range params {
		if sig := match(name); sig != nil {
			return sc.deny(ctx, identity, sig, name)
		}
		for _, value := range values {
			if sig := match(value); sig != nil {
				return sc.deny(ctx, identity, sig, name)
			}
		}
	}

	return models.Allow()
}

func match(input string) *signature {
	if input == "" {
		return nil
	}
	// Attackers routinely double-encode; scan the decoded form alongside the
	// raw one when they differ.
	candidates := []string{input}
	if decoded, err := url.QueryUnescape(input); err == nil && decoded != input {
		candidates = append(candidates, decoded)
	}

	for i := range signatures {
		for _, c := range candidates {
			if signatures[i].re.MatchString(c) {
				return &signatures[i]
			}
		}
	}
	return nil
}

func (sc *Scanner) deny(ctx context.Context, identity string, sig *signature, field string) models.Verdict {
	sc.metrics.RecordScanMatch(sig.category)
	observability.LogAudit(ctx, sc.logger, "suspicious_input_detected",
		"identifier", identity,
		"category", sig.category,
		"signature", sig.name,
		"field", field,
		"reason", models.ReasonSuspiciousInput,
	)
	// The payload itself is never logged: audit sinks should not become a
	// second-order injection target.
	return models.Deny(models.ReasonSuspiciousInput)
}
