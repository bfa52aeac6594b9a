package internal

import (
	"io"

	"github.com/starford/folio/internal/pdfdoc"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	decoder pdfdoc.Decoder
	logOut  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithDecoder overrides the PDF decoder selected by render.backend.
func WithDecoder(d pdfdoc.Decoder) Option {
	return func(a *application) {
		a.decoder = d
	}
}

// WithLogOutput sets where structured logs are written (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
