// conf/validate.go settings validation
package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface for ValidationError
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := settings.DetectorConfig().Validate(); err != nil {
		ve.Errors = append(ve.Errors, flattenValidation(err)...)
	}

	if err := validateModelSettings(&settings.Model); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDetectorRuntime(&settings.Detector); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.WebServer.Enabled {
		if err := validateListenAddress("webserver", settings.WebServer.Listen); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if settings.Telemetry.Enabled && settings.Telemetry.Listen != "" {
		if err := validateListenAddress("telemetry", settings.Telemetry.Listen); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func flattenValidation(err error) []string {
	if ve, ok := err.(ValidationError); ok {
		return ve.Errors
	}
	return []string{err.Error()}
}

func validateModelSettings(m *ModelSettings) error {
	if m.Threads < 0 {
		return fmt.Errorf("model threads must be zero or positive, got %d", m.Threads)
	}
	return nil
}

func validateDetectorRuntime(d *DetectorSettings) error {
	if d.QueueSize <= 0 {
		return fmt.Errorf("detector queue size must be positive, got %d", d.QueueSize)
	}
	if d.MaxResults < 0 {
		return fmt.Errorf("detector max results must be zero or positive, got %d", d.MaxResults)
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) error {
	if a.ChunkSamples <= 0 {
		return fmt.Errorf("audio chunk size must be positive, got %d", a.ChunkSamples)
	}
	return nil
}

func validateListenAddress(section, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s listen address %q is invalid: %w", section, addr, err)
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if !m.Enabled {
		return nil
	}

	if m.Broker == "" {
		return fmt.Errorf("MQTT is enabled but broker URL is not set")
	}
	u, err := url.Parse(m.Broker)
	if err != nil {
		return fmt.Errorf("invalid MQTT broker URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("unsupported MQTT broker scheme %q", u.Scheme)
	}

	if m.Topic == "" {
		return fmt.Errorf("MQTT is enabled but topic is not set")
	}
	if strings.ContainsAny(m.Topic, "#+") {
		return fmt.Errorf("MQTT topic %q must not contain wildcards", m.Topic)
	}
	if m.Threshold < 0 || m.Threshold > 1 {
		return fmt.Errorf("MQTT threshold must be within [0,1], got %v", m.Threshold)
	}
	if m.Cooldown < 0 {
		return fmt.Errorf("MQTT cooldown must not be negative, got %v", m.Cooldown)
	}
	return nil
}
