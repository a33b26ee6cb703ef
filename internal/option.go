package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	version   string
	logOutput io.Writer
	getenv    func(string) string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the JSON logger. The MCP transport owns stdout, so
// the mcp command logs to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithGetenv replaces os.Getenv for reading the provider key.
func WithGetenv(fn func(string) string) Option {
	return func(a *application) {
		a.getenv = fn
	}
}

func newApplication(opts []Option) *application {
	app := &application{
		version:   "dev",
		logOutput: os.Stdout,
		getenv:    os.Getenv,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}
