// Package launcher configures and launches agents on AgentCore Runtime:
// it builds the agent container, pushes it to ECR, ensures an execution
// role and creates or updates the agent runtime.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is written next to the agent sources by Configure.
const ConfigFileName = ".bedrock_agentcore.yaml"

// DefaultPlatform is the only architecture AgentCore Runtime runs.
const DefaultPlatform = "linux/arm64"

// ErrNoEntrypoint is returned when Configure is called without an entrypoint.
var ErrNoEntrypoint = errors.New("entrypoint is required")

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// AgentConfig is the persisted launch configuration of one agent.
type AgentConfig struct {
	Name                    string            `yaml:"name"`
	Entrypoint              string            `yaml:"entrypoint"`
	Platform                string            `yaml:"platform"`
	Region                  string            `yaml:"region"`
	ExecutionRole           string            `yaml:"execution_role,omitempty"`
	AutoCreateExecutionRole bool              `yaml:"execution_role_auto_create"`
	ECRRepository           string            `yaml:"ecr_repository,omitempty"`
	AutoCreateECR           bool              `yaml:"ecr_auto_create"`
	Environment             map[string]string `yaml:"environment,omitempty"`
	SystemPackages          []string          `yaml:"system_packages,omitempty"`
	AgentID                 string            `yaml:"agent_id,omitempty"`
	AgentARN                string            `yaml:"agent_arn,omitempty"`
}

// ConfigFile is the on-disk layout of ConfigFileName.
type ConfigFile struct {
	DefaultAgent string                  `yaml:"default_agent"`
	Agents       map[string]*AgentConfig `yaml:"agents"`
}

// Options are the inputs of Configure.
type Options struct {
	Entrypoint    string
	AgentName     string
	Region        string
	ExecutionRole string
	ECRRepository string
	Environment   map[string]string
	// SystemPackages are extra Alpine packages installed in the image.
	SystemPackages []string
}

// AgentNameFromEntrypoint derives an agent name from the entrypoint path:
// the base name without extension, with characters AgentCore rejects
// replaced by underscores.
func AgentNameFromEntrypoint(entrypoint string) string {
	base := filepath.Base(filepath.Clean(entrypoint))
	if base == "main.go" {
		base = filepath.Base(filepath.Dir(filepath.Clean(entrypoint)))
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return SanitizeName(base)
}

// SanitizeName makes name acceptable as an agent runtime name: letters,
// digits and underscores, starting with a letter, at most 48 characters.
func SanitizeName(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	if name == "" || !isLetter(name[0]) {
		name = "agent_" + name
	}
	if len(name) > 48 {
		name = name[:48]
	}
	return name
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Configure validates opts, writes the agent to ConfigFileName in dir and
// makes it the default agent.
func Configure(dir string, opts Options) (*AgentConfig, error) {
	if strings.TrimSpace(opts.Entrypoint) == "" {
		return nil, ErrNoEntrypoint
	}
	if _, err := os.Stat(filepath.Join(dir, opts.Entrypoint)); err != nil {
		return nil, fmt.Errorf("entrypoint %s: %w", opts.Entrypoint, err)
	}

	name := opts.AgentName
	if name == "" {
		name = AgentNameFromEntrypoint(opts.Entrypoint)
	} else {
		name = SanitizeName(name)
	}

	file, err := LoadFile(dir)
	if err != nil {
		return nil, err
	}
	cfg := &AgentConfig{
		Name:                    name,
		Entrypoint:              opts.Entrypoint,
		Platform:                DefaultPlatform,
		Region:                  opts.Region,
		ExecutionRole:           opts.ExecutionRole,
		AutoCreateExecutionRole: opts.ExecutionRole == "",
		ECRRepository:           opts.ECRRepository,
		AutoCreateECR:           opts.ECRRepository == "",
		Environment:             opts.Environment,
		SystemPackages:          opts.SystemPackages,
	}
	// Keep the runtime identity from a previous launch so relaunching
	// updates the same runtime.
	if prev, ok := file.Agents[name]; ok {
		cfg.AgentID = prev.AgentID
		cfg.AgentARN = prev.AgentARN
	}
	file.Agents[name] = cfg
	file.DefaultAgent = name

	if err := SaveFile(dir, file); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads ConfigFileName from dir. A missing file yields an empty
// configuration.
func LoadFile(dir string) (*ConfigFile, error) {
	file := &ConfigFile{Agents: map[string]*AgentConfig{}}
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if errors.Is(err, os.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	if file.Agents == nil {
		file.Agents = map[string]*AgentConfig{}
	}
	return file, nil
}

// SaveFile writes file to ConfigFileName in dir.
func SaveFile(dir string, file *ConfigFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ConfigFileName, err)
	}
	//nolint:gosec // G306: config holds no secrets
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFileName, err)
	}
	return nil
}

// Agent returns the named agent, or the default agent when name is empty.
func (f *ConfigFile) Agent(name string) (*AgentConfig, error) {
	if name == "" {
		name = f.DefaultAgent
	}
	cfg, ok := f.Agents[name]
	if !ok || name == "" {
		return nil, fmt.Errorf("agent %q is not configured; run configure first", name)
	}
	return cfg, nil
}
