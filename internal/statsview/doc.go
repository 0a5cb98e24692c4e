// Package statsview exposes the host process's runtime charts while the
// board model runs, which helps when tuning the unthrottled clock loop.
//
// The server is compiled in only under the statsview build tag. Other
// builds get a stub whose Start is a no-op and Enabled is false.
package statsview
