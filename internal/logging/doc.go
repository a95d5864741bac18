// Package logging configures slog for ftsindex. Logs are JSON lines written
// to a size-rotated file under the project's data directory and, optionally,
// mirrored to stderr. The viewer reads those files back for the logs command.
package logging
