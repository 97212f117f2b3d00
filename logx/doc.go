// Package logx builds a [log/slog] handler for the target's diagnostic
// output, which always goes to standard error — standard output is
// reserved for emitted checkpoints.
//
// It supports JSON, logfmt, and plain text output ([FormatJSON],
// [FormatLogfmt], [FormatText]) and the four severities the engine logs at
// ([LevelError], [LevelWarn], [LevelInfo], [LevelDebug]). Use [Config] to
// wire CLI flags via [github.com/spf13/pflag], with completions via
// [github.com/spf13/cobra]:
//
//	cfg := logx.NewConfig()
//	cfg.RegisterFlags(rootCmd.PersistentFlags())
//	cfg.RegisterCompletions(rootCmd)
//
//	handler, err := cfg.NewHandler(os.Stderr)
//	slog.SetDefault(slog.New(handler))
package logx
