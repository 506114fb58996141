// Package config loads the process configuration from environment variables
// and resolves, once at startup, which transport the process serves: a single
// stdio session or the multi-client SSE endpoint. Missing required variables
// surface as a CONFIGURATION_ERROR naming every absent variable.
package config
