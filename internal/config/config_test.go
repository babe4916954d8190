package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAgent(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("PORT", "")
		os.Unsetenv("PORT")
		t.Setenv("AWS_REGION", "")
		os.Unsetenv("AWS_REGION")
		t.Setenv("MODEL_ID", "")

		c, err := LoadAgent()
		require.NoError(t, err)
		require.Equal(t, 8080, c.Port)
		require.Equal(t, "us-west-2", c.Region)
		require.Equal(t, DefaultResearcherModelID, c.ModelOrDefault(DefaultResearcherModelID))
	})

	t.Run("from env", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("GATEWAY_URL", "https://gw.gateway.bedrock-agentcore.us-east-1.amazonaws.com/mcp")
		t.Setenv("MODEL_ID", "my-model")
		t.Setenv("BEDROCK_AGENTCORE_MEMORY_ID", "mem-123")

		c, err := LoadAgent()
		require.NoError(t, err)
		require.Equal(t, 9000, c.Port)
		require.Equal(t, "mem-123", c.MemoryID)
		require.Equal(t, "my-model", c.ModelOrDefault("other"))
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("PORT", "not-a-number")
		_, err := LoadAgent()
		require.Error(t, err)
	})
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGENT_ARN=arn:aws:bedrock-agentcore:us-west-2:1:runtime/a\nPROMPT=hi there\n"), 0o600))

	t.Setenv("AGENT_ARN", "")
	os.Unsetenv("AGENT_ARN")
	t.Setenv("PROMPT", "already set")

	LoadDotEnv(path)
	c, err := LoadClient()
	require.NoError(t, err)
	require.Equal(t, "arn:aws:bedrock-agentcore:us-west-2:1:runtime/a", c.AgentARN)
	require.Equal(t, "already set", c.Prompt)

	// missing files are ignored
	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
