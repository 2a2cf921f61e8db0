package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath is the environment variable which tells the path to the config file.
const EnvConfigPath = "MODELFLOW_CONFIG"

// load modelflow config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *Config, error:
//
//	When loading success, returns `(*Config, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadConfig(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// Unmarshal parses and seals a config.
//
// Unlike TrySeal, misconfiguration is reported as an error.
func Unmarshal(conf []byte) (out *Config, err error) {
	var _out *ConfigMarshall
	if err = yaml.Unmarshal(conf, &_out); err != nil {
		return nil, err
	}
	if _out == nil {
		_out = &ConfigMarshall{}
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &MisconfigurationError{reason: r}
		}
	}()
	out = TrySeal(_out)
	return out, nil
}

type MisconfigurationError struct {
	reason any
}

func (m *MisconfigurationError) Error() string {
	if err, ok := m.reason.(error); ok {
		return "misconfiguration: " + err.Error()
	}
	if s, ok := m.reason.(string); ok {
		return "misconfiguration: " + s
	}
	return "misconfiguration"
}

func (m *MisconfigurationError) Unwrap() error {
	if err, ok := m.reason.(error); ok {
		return err
	}
	return nil
}
