package runtime

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ConfigError reports a node configuration that could not be decoded.
type ConfigError struct {
	NodeID string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node '%s' has invalid config: %v", e.NodeID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type triggerConfig struct {
	Filter string `mapstructure:"filter"`
}

type fetchConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type transformConfig struct {
	Instruction string `mapstructure:"instruction"`
}

type emailConfig struct {
	ToEmail string `mapstructure:"to_email"`
	Subject string `mapstructure:"subject"`
}

type whatsAppConfig struct {
	ToPhone string `mapstructure:"to_phone"`
}

type webhookConfig struct {
	URL string `mapstructure:"url"`
}

// decodeConfig maps the string-valued node configuration onto a typed struct.
// Unknown keys are ignored so editors may store presentation data alongside.
func decodeConfig(nodeID string, raw map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return &ConfigError{NodeID: nodeID, Err: err}
	}
	if err := dec.Decode(raw); err != nil {
		return &ConfigError{NodeID: nodeID, Err: err}
	}
	return nil
}
