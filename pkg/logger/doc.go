// Package logger provides the structured logging interface used across
// scrapix. It wraps zerolog with field-carrying child loggers, coloured
// console output on stderr, optional JSON file output and a global
// instance for the command layer.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("query", "wild duck").InfoWithFields("Harvest finished", map[string]interface{}{
//	    "accepted": 12,
//	    "passes":   3,
//	})
//
// Components receive a Logger explicitly; tests pass NewTestLogger to
// assert on what was logged or NewNopLogger to silence output.
package logger
