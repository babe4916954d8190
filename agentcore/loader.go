package agentcore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/constructs-go/constructs/v10"
	"gopkg.in/yaml.v3"
)

// LoadStackConfigFromFile loads a StackConfig from a .json, .yaml or .yml
// file.
func LoadStackConfigFromFile(path string) (*StackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadStackConfigFromJSON(data)
	case ".yaml", ".yml":
		return LoadStackConfigFromYAML(data)
	default:
		return nil, fmt.Errorf("%s: unsupported config extension %q", path, filepath.Ext(path))
	}
}

// LoadStackConfigFromJSON parses, defaults and validates a StackConfig.
func LoadStackConfigFromJSON(data []byte) (*StackConfig, error) {
	var config StackConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing JSON config: %w", err)
	}
	return finish(&config)
}

// LoadStackConfigFromYAML parses, defaults and validates a StackConfig.
func LoadStackConfigFromYAML(data []byte) (*StackConfig, error) {
	var config StackConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	return finish(&config)
}

func finish(config *StackConfig) (*StackConfig, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// NewStackFromFile creates an AgentCoreStack from a JSON or YAML config file.
func NewStackFromFile(scope constructs.Construct, configPath string) (*AgentCoreStack, error) {
	config, err := LoadStackConfigFromFile(configPath)
	if err != nil {
		return nil, err
	}
	return NewAgentCoreStack(scope, config.StackName, *config), nil
}

// MustNewStackFromFile is like NewStackFromFile but panics on error.
func MustNewStackFromFile(scope constructs.Construct, configPath string) *AgentCoreStack {
	stack, err := NewStackFromFile(scope, configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to create stack from %s: %v", configPath, err))
	}
	return stack
}
