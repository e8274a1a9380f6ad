package client

import (
	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
)

// ClientOptions configures the object client.
type ClientOptions struct {
	// ActivationPath is the endpoint receiving activation requests.
	// Default: /sap/bc/adt/activation
	ActivationPath string

	// Header is added to every request the client issues, e.g. sap-client
	// or Accept-Language.
	Header transport.Fields

	// Logger is the logger implementation to use.
	// If nil, a no-op logger is used.
	Logger logging.Logger
}

// DefaultOptions returns the default client options.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		ActivationPath: "/sap/bc/adt/activation",
	}
}

// Option mutates ClientOptions.
type Option func(*ClientOptions)

// WithActivationPath overrides the activation endpoint.
func WithActivationPath(path string) Option {
	return func(o *ClientOptions) { o.ActivationPath = path }
}

// WithHeader adds a header sent with every request.
func WithHeader(name, value string) Option {
	return func(o *ClientOptions) { o.Header.Add(name, value) }
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(o *ClientOptions) { o.Logger = l }
}
