// Package log wraps zerolog with the global-logger-plus-child-logger pattern
// used across the example pack: Init sets the process-wide level and
// output once, and WithComponent/WithProcess/WithTransaction hand out
// pre-tagged child loggers to the packages that need them.
package log
