// Package envfile reads .env files and sorts their keys into the secret
// groups pushed to AWS Secrets Manager.
package envfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultConfigDir is the per-user directory searched for .env files.
const DefaultConfigDir = ".agentcore"

// ErrNotFound is returned when no .env file exists in any search location.
var ErrNotFound = errors.New("no .env file found in: .env, ../.env, or ~/" + DefaultConfigDir + "/")

// SecretGroup represents a logical grouping of secrets.
type SecretGroup struct {
	Name        string
	Description string
	Keys        map[string]string
	Patterns    []string // Key names that belong to this group
}

// DefaultGroups returns the llm, search and config groups.
func DefaultGroups() []SecretGroup {
	return []SecretGroup{
		{
			Name:        "llm",
			Description: "LLM provider API keys",
			Keys:        make(map[string]string),
			Patterns: []string{
				"CLAUDE_APIKEY",
				"CLAUDE_API_KEY",
				"ANTHROPIC_API_KEY",
				"OPENAI_API_KEY",
				"GOOGLE_API_KEY",
				"GEMINI_API_KEY",
			},
		},
		{
			Name:        "search",
			Description: "Search and tool provider API keys",
			Keys:        make(map[string]string),
			Patterns: []string{
				"NASA_API_KEY",
				"SERPER_API_KEY",
				"TAVILY_API_KEY",
			},
		},
		{
			Name:        "config",
			Description: "Agent runtime configuration",
			Keys:        make(map[string]string),
			Patterns: []string{
				"MODEL_ID",
				"GATEWAY_URL",
				"BEDROCK_AGENTCORE_MEMORY_ID",
				"LOG_LEVEL",
			},
		},
	}
}

// Parse reads filename and assigns every recognised, non-placeholder value
// to its group. It returns the keys that were found, sorted.
func Parse(filename string, groups []SecretGroup) ([]string, error) {
	values, err := godotenv.Read(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	var found []string
	for key, value := range values {
		value = strings.Trim(value, `"'`)

		// Skip empty or placeholder values
		if value == "" || strings.HasPrefix(value, "your-") {
			continue
		}

		for i := range groups {
			if contains(groups[i].Patterns, key) {
				groups[i].Keys[key] = value
				found = append(found, key)
				break
			}
		}
	}
	sort.Strings(found)
	return found, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// KeyNames returns the sorted key names of a group.
func (g SecretGroup) KeyNames() []string {
	names := make([]string, 0, len(g.Keys))
	for k := range g.Keys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// JSON returns the group's keys as a JSON object.
func (g SecretGroup) JSON() (string, error) {
	b, err := json.Marshal(g.Keys)
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(b), nil
}

var maskPattern = regexp.MustCompile(`("(?:[^"]*API_?KEY|KEY)[^"]*"\s*:\s*")([^"]{8})([^"]*)"`)

// MaskSecretValues masks API key values in a JSON string, keeping only the
// first 8 characters.
func MaskSecretValues(jsonStr string) string {
	return maskPattern.ReplaceAllString(jsonStr, `$1$2***"`)
}

// Find searches for a .env file in standard locations:
//  1. .env in the current directory
//  2. ../.env
//  3. ~/.agentcore/projects/{project}/.env (if project is set)
//  4. ~/.agentcore/.env
func Find(projectName string) (string, error) {
	candidates := []string{".env", "../.env"}

	if home, err := os.UserHomeDir(); err == nil {
		if projectName != "" {
			candidates = append(candidates, filepath.Join(home, DefaultConfigDir, "projects", projectName, ".env"))
		}
		candidates = append(candidates, filepath.Join(home, DefaultConfigDir, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// DetectProjectName reads stackName from config.json (or ../config.json) and
// falls back to the current directory name.
func DetectProjectName() string {
	for _, path := range []string{"config.json", "../config.json"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg struct {
			StackName string `json:"stackName"`
		}
		if json.Unmarshal(data, &cfg) == nil && cfg.StackName != "" {
			return cfg.StackName
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Base(wd)
	}
	return ""
}
