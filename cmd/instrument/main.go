// Package main implements the scriptforge CLI: a thin wrapper around
// internal/instrument.InstrumentFile. It owns argument parsing, config-file
// defaults, and reading/writing files - nothing of the instrumentation
// core's own logic lives here.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"scriptforge/internal/instrument"
	"scriptforge/internal/logging"
	"scriptforge/internal/model"
	"scriptforge/internal/oracle"
)

var (
	flagLanguage            string
	flagOutput              string
	flagWorkspace           string
	flagConfig              string
	flagMaxWorkers          int
	flagSandboxTimeoutMs    int
	flagOracleTimeoutMs     int
	flagMaxRefactorAttempts int
	flagCacheRoot           string
	flagLessonsRoot         string
	flagGeminiAPIKey        string
	flagGeminiModel         string
	flagVerbose             bool
)

var rootCmd = &cobra.Command{
	Use:   "instrument <source-file>",
	Short: "Rewrite a source file's functions to emit runtime telemetry",
	Long: `instrument rewrites every function body in a source file to emit
runtime telemetry (entry, exit, variable change, loop iteration, conditional
branch, exception, array mutation) while preserving the original behavior.

It is a thin wrapper over the instrumentation core: cache lookup, template
or oracle-backed transformer generation, validation, a bounded refactor
loop, and sandboxed execution all happen per function, in parallel, bounded
by --workers.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstrument,
}

func init() {
	rootCmd.Flags().StringVarP(&flagLanguage, "language", "l", "", "source language (go, py, js, ts); defaults to the file extension")
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file path (default: stdout)")
	rootCmd.Flags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace directory for .scriptforge/logs and the default cache root (default: current directory)")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a YAML defaults file (default: .scriptforge.yaml if present)")
	rootCmd.Flags().IntVar(&flagMaxWorkers, "workers", 0, "max concurrently executing transformers (default: 12)")
	rootCmd.Flags().IntVar(&flagSandboxTimeoutMs, "sandbox-timeout-ms", 0, "per-function sandbox wall timeout (default: 10000)")
	rootCmd.Flags().IntVar(&flagOracleTimeoutMs, "oracle-timeout-ms", 0, "per-call oracle timeout (default: 120000)")
	rootCmd.Flags().IntVar(&flagMaxRefactorAttempts, "max-refactor-attempts", 0, "bounded refactor-loop retries (default: 3)")
	rootCmd.Flags().StringVar(&flagCacheRoot, "cache-root", "", "script cache directory (default: <workspace>/.scriptforge/cache)")
	rootCmd.Flags().StringVar(&flagLessonsRoot, "lessons-root", "", "lesson corpus directory (default: none)")
	rootCmd.Flags().StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key for the oracle (or set GEMINI_API_KEY); omit to run template-only")
	rootCmd.Flags().StringVar(&flagGeminiModel, "gemini-model", "", "Gemini model id (default: "+oracle.DefaultGeminiModel+")")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug-level category logging")
}

func runInstrument(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]

	fileCfg, err := loadFileConfig(flagConfig)
	if err != nil {
		return err
	}

	ws := flagWorkspace
	if ws == "" {
		ws, _ = os.Getwd()
	} else if abs, aerr := filepath.Abs(ws); aerr == nil {
		ws = abs
	}
	if flagVerbose {
		if err := ensureDebugLoggingConfig(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not write debug logging config: %v\n", err)
		}
	}
	if err := logging.Initialize(ws); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
	}
	defer logging.CloseAll()

	sourceBytes, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}

	lang := model.Language(flagLanguage)
	if lang == "" {
		lang = model.ParseLanguage(filepath.Ext(sourcePath))
	}

	apiKey := flagGeminiAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	geminiModel := firstNonEmpty(flagGeminiModel, fileCfg.GeminiModel)

	ctx := context.Background()
	o, err := oracle.NewOracleOrStub(ctx, apiKey, geminiModel)
	if err != nil {
		return fmt.Errorf("construct oracle: %w", err)
	}

	opts := instrument.Options{
		MaxWorkers:          firstPositive(flagMaxWorkers, fileCfg.MaxWorkers),
		SandboxTimeoutMs:    firstPositive(flagSandboxTimeoutMs, fileCfg.SandboxTimeoutMs),
		OracleTimeoutMs:     firstPositive(flagOracleTimeoutMs, fileCfg.OracleTimeoutMs),
		MaxRefactorAttempts: firstPositive(flagMaxRefactorAttempts, fileCfg.MaxRefactorAttempts),
		CacheRoot:           firstNonEmpty(flagCacheRoot, fileCfg.CacheRoot, filepath.Join(ws, ".scriptforge", "cache")),
		LessonsRoot:         firstNonEmpty(flagLessonsRoot, fileCfg.LessonsRoot),
	}

	core, err := instrument.New(o, opts)
	if err != nil {
		return fmt.Errorf("build instrumentation core: %w", err)
	}

	start := time.Now()
	result, err := core.InstrumentFile(ctx, sourceBytes, lang, opts)
	if err != nil {
		return fmt.Errorf("instrument %s: %w", sourcePath, err)
	}

	if flagOutput == "" {
		if _, err := os.Stdout.Write(result.InstrumentedSource); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
	} else {
		if err := os.WriteFile(flagOutput, result.InstrumentedSource, 0o644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
	}

	reportStatuses(result, time.Since(start))
	return nil
}

// reportStatuses prints a one-line-per-function summary to stderr so stdout
// can carry only the instrumented source when --output is omitted.
func reportStatuses(result model.FileCompositionResult, elapsed time.Duration) {
	failed := 0
	cached := 0
	for _, st := range result.PerFunctionStatuses {
		if !st.Success {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL  %-30s %-12s %s\n", st.FunctionName, st.ReasonKind, st.Details)
			continue
		}
		if st.Cached {
			cached++
		}
	}
	fmt.Fprintf(os.Stderr, "instrumented %d/%d function(s) (%d cached, %d failed) in %v\n",
		result.ReplacedCount, len(result.PerFunctionStatuses), cached, failed, elapsed.Round(time.Millisecond))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
