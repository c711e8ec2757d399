// Package log provides audit-trailed logging for recovery runs, built on
// top of the standard slog package.
//
// This package extends slog to provide:
//   - An AuditHandler that mirrors every record to an append-only file
//   - A stable, greppable line format shared with older recovery tooling
//   - Configurable log levels via options
//
// # Audit Trail
//
// Forensic workflows expect a plain text log next to the recovered
// evidence recording what the tool did and when. The AuditHandler writes
// one line per record:
//
//	[2006-01-02 15:04:05] [INFO] artifact recovered tag=jpg size=48212
//
// while the wrapped handler keeps producing normal console output. The
// audit file is opened append-only with owner-only permissions, so
// repeated runs extend the trail rather than rewriting history.
//
// # Usage
//
//	logger, err := log.NewLogger(os.Stderr,
//	    log.WithLevel(slog.LevelDebug),
//	    log.WithAuditFile("forensic_recovery/forensic_log.txt"),
//	)
//	if err != nil {
//	    return err
//	}
//	logger.Info("recovery run started", "source", root)
package log
