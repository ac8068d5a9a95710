/*
Package log provides structured logging for rolesweep using zerolog.

A single global logger is configured once at startup with Init. Packages
derive child loggers carrying a component name, and the reconciler adds
run and member identifiers so one run can be followed end to end:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("reconciler")
	logger.Info().Str("filter", "premium/*").Int("removed", 3).Msg("Reconciliation finished")

Until Init is called the global logger discards all output, which keeps
package tests quiet.

# Levels

The reconciler deliberately keeps its steady state quiet: an empty run is
logged at debug unless the previous run for the same filter found work.
Permission errors from the platform are logged at error level because they
need an operator; transient platform errors are warnings and retried on the
next run.
*/
package log
