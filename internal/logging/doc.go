// Package logging provides the zap logger shared by the gsat commands.
//
// Logging is silent unless a level is given explicitly or with the
// GSAT_LOG_LEVEL environment variable. Library packages never use the global
// logger directly. They receive a *zap.Logger in their configuration and the
// commands pass GetLogger() there.
package logging
