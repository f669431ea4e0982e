// Package app provides application initialization and lifecycle management
// for the Seraphix key validation API. It wires configuration, logging, the
// customer store, the validation services and the HTTP router together at
// startup and handles graceful shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and optional YAML file
//	2. Initialize the structured logger
//	3. Open the customer store (connect-or-fail-fast)
//	4. Build services with their dependencies
//	5. Set up HTTP handlers and middleware
//	6. Configure the HTTP server
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM, then drains active requests within
// the configured shutdown timeout and closes the store.
//
// All initialization errors are returned to the caller; the package never
// calls os.Exit() directly, allowing main to control the exit process.
package app
