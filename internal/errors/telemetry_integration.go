// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu              sync.RWMutex
	globalTelemetryReporter TelemetryReporter
)

// SetTelemetryReporter installs the global telemetry reporter. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalTelemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// InitSentry initializes the Sentry SDK and installs a SentryReporter.
// An empty DSN leaves reporting disabled.
func InitSentry(dsn, release string, debug bool) (*SentryReporter, error) {
	if dsn == "" {
		return &SentryReporter{enabled: false}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Debug:            debug,
		AttachStacktrace: false,
		SampleRate:       1.0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			event.User = sentry.User{}
			return event
		},
	}); err != nil {
		return nil, New(err).
			Component("telemetry").
			Category(CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	reporter := &SentryReporter{enabled: true}
	SetTelemetryReporter(reporter)
	return reporter, nil
}

// FlushSentry waits for buffered events to be delivered.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy scrubbing
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))
	title := generateErrorTitle(ee)
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := errorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle builds a grouping title from component, category and operation
func generateErrorTitle(ee *EnhancedError) string {
	var parts []string

	if component := ee.GetComponent(); component != "" && component != ComponentUnknown {
		parts = append(parts, titleCase(component))
	}
	if ee.Category != "" {
		parts = append(parts, formatCategoryForTitle(ee.Category))
	}
	if operation, ok := ee.GetContext()["operation"].(string); ok && operation != "" {
		parts = append(parts, formatOperationForTitle(operation))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryModelInit:
		return "Model Initialization Error"
	case CategoryModelLoad:
		return "Model Loading Error"
	case CategoryInference:
		return "Inference Error"
	case CategoryFeature:
		return "Feature Extraction Error"
	case CategoryAudioSource:
		return "Audio Source Error"
	case CategoryValidation:
		return "Validation Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryFileIO:
		return "File I/O Error"
	default:
		return formatOperationForTitle(string(category))
	}
}

func formatOperationForTitle(operation string) string {
	words := strings.FieldsFunc(operation, func(r rune) bool { return r == '_' || r == '-' })
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func errorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryMQTTConnect, CategoryMQTTPublish, CategoryFileIO, CategoryAudio:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

// Scrubbing patterns are compiled once
var (
	urlQueryRegex  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	credentialURL  = regexp.MustCompile(`([a-z]+://)[^:/\s]+:[^@\s]+@`)
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
	}
)

// scrubMessage removes URL query strings, URL credentials and obvious secrets
func scrubMessage(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = credentialURL.ReplaceAllString(scrubbed, "$1[REDACTED]@")
	for _, re := range secretPatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "[REDACTED]")
	}
	return scrubbed
}
