package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

// Runner runs external commands. stdin may be empty.
type Runner interface {
	Run(ctx context.Context, stdin string, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, streaming their output to Out.
type ExecRunner struct {
	Dir     string
	Out     io.Writer
	Verbose bool
	// Env is appended to the current environment.
	Env []string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, stdin string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if r.Verbose && r.Out != nil {
		cmd.Stdout = r.Out
		cmd.Stderr = io.MultiWriter(r.Out, &stderr)
	}
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, args[0], err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return nil
}

var dockerfileTemplate = template.Must(template.New("Dockerfile").Parse(`FROM --platform={{.Platform}} public.ecr.aws/docker/library/golang:1.25 AS build
WORKDIR /src
COPY go.mod go.sum ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 GOOS=linux GOARCH=arm64 go build -o /agent {{.Package}}

FROM --platform={{.Platform}} public.ecr.aws/docker/library/alpine:3.20
RUN apk add --no-cache ca-certificates{{range .Packages}} {{.}}{{end}}
COPY --from=build /agent /agent
EXPOSE 8080
ENTRYPOINT ["/agent"]
`))

// MainPackage returns the Go package path built for entrypoint, which is
// either a main package directory or a file inside it.
func MainPackage(entrypoint string) string {
	p := filepath.ToSlash(filepath.Clean(entrypoint))
	if strings.HasSuffix(p, ".go") {
		p = filepath.ToSlash(filepath.Dir(p))
	}
	if p == "." {
		return "."
	}
	return "./" + strings.TrimPrefix(p, "./")
}

// Dockerfile renders the container definition of cfg.
func Dockerfile(cfg *AgentConfig) (string, error) {
	var buf bytes.Buffer
	err := dockerfileTemplate.Execute(&buf, map[string]any{
		"Platform": cfg.Platform,
		"Package":  MainPackage(cfg.Entrypoint),
		"Packages": cfg.SystemPackages,
	})
	if err != nil {
		return "", fmt.Errorf("rendering Dockerfile: %w", err)
	}
	return buf.String(), nil
}

// EnsureDockerfile writes a Dockerfile for cfg into dir unless one exists.
// It reports whether a file was written.
func EnsureDockerfile(dir string, cfg *AgentConfig) (bool, error) {
	path := filepath.Join(dir, "Dockerfile")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	content, err := Dockerfile(cfg)
	if err != nil {
		return false, err
	}
	//nolint:gosec // G306: Dockerfile is not sensitive
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing Dockerfile: %w", err)
	}
	return true, nil
}
