// Package main hosts the pulsecam CLI entrypoint and command graph.
//
// The hidden daemon command runs the capture and eviction workers in the
// foreground. The remaining commands scaffold and validate configuration and
// inspect the configured object store without starting the daemon.
package main
