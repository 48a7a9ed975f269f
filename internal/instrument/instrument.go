// Package instrument is the single programmatic entry point that ties
// every other component together into one instrument_file call: a Core
// type that wires already-built subsystems together behind one or two
// exported entry points.
package instrument

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"scriptforge/internal/analyzer"
	"scriptforge/internal/cache"
	"scriptforge/internal/composer"
	"scriptforge/internal/dispatcher"
	"scriptforge/internal/fingerprint"
	"scriptforge/internal/generator"
	"scriptforge/internal/lessons"
	"scriptforge/internal/logging"
	"scriptforge/internal/model"
	"scriptforge/internal/oracle"
	"scriptforge/internal/refactor"
	"scriptforge/internal/sandbox"
	"scriptforge/internal/validator"
)

// Options configures one instrument_file run.
type Options struct {
	MaxWorkers          int
	SandboxTimeoutMs    int
	OracleTimeoutMs     int
	MaxRefactorAttempts int
	CacheRoot           string
	LessonsRoot         string
}

// WithDefaults fills in any zero-valued field with its standard default.
func (o Options) WithDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 12
	}
	if o.SandboxTimeoutMs <= 0 {
		o.SandboxTimeoutMs = 10_000
	}
	if o.OracleTimeoutMs <= 0 {
		o.OracleTimeoutMs = 120_000
	}
	if o.MaxRefactorAttempts <= 0 {
		o.MaxRefactorAttempts = 3
	}
	return o
}

// Core bundles the subsystems instrument_file drives. Built once (e.g. at
// process startup, via New) and reused across many instrument_file calls so
// the Script Cache and Lesson Corpus are loaded only once per process.
type Core struct {
	registry  *analyzer.Registry
	oracle    oracle.Oracle
	lessons   *lessons.Corpus
	cache     *cache.Cache
	sandbox   *sandbox.Sandbox
	validator *validator.Validator
	generator *generator.Generator
	refactor  *refactor.Loop
}

// New builds a Core wired with the standard structured analyzers for
// go/py/js/ts plus an oracle fallback, the given Oracle backend (may be
// oracle.StubOracle{} to run template-only), and the cache/lessons roots
// named in opts.
func New(o oracle.Oracle, opts Options) (*Core, error) {
	opts = opts.WithDefaults()

	reg := analyzer.NewRegistry()
	reg.Register(analyzer.NewGoAnalyzer())
	reg.Register(analyzer.NewPythonAnalyzer())
	reg.Register(analyzer.NewJavaScriptAnalyzer())
	reg.Register(analyzer.NewTypeScriptAnalyzer())
	reg.SetOracleFallback(analyzer.NewOracleAnalyzer(o, model.Language("")))

	var corpus *lessons.Corpus
	if opts.LessonsRoot != "" {
		loaded, err := lessons.Load(opts.LessonsRoot)
		if err != nil {
			return nil, fmt.Errorf("instrument: load lesson corpus: %w", err)
		}
		corpus = loaded
	} else {
		corpus = lessons.Empty()
	}

	c, err := cache.Open(opts.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("instrument: open cache: %w", err)
	}

	sb := sandbox.New()
	val := validator.New(sb)
	val.BehavioralTimeout = time.Duration(opts.SandboxTimeoutMs) * time.Millisecond
	gen := generator.New(o, corpus)
	loop := refactor.New(o, val, corpus)
	loop.MaxAttempts = opts.MaxRefactorAttempts

	return &Core{
		registry:  reg,
		oracle:    o,
		lessons:   corpus,
		cache:     c,
		sandbox:   sb,
		validator: val,
		generator: gen,
		refactor:  loop,
	}, nil
}

// InstrumentFile implements `instrument_file(source_bytes, language,
// options) → FileCompositionResult`. Analysis failure (ParseError) is
// fatal and returned as an error; every other failure is per-function and
// reported via the result's PerFunctionStatuses instead.
func (c *Core) InstrumentFile(ctx context.Context, sourceBytes []byte, language model.Language, opts Options) (model.FileCompositionResult, error) {
	opts = opts.WithDefaults()

	source := model.NewSourceFile(language, sourceBytes, "")
	analysis, err := c.registry.Analyze(ctx, source)
	if err != nil {
		logging.Get(logging.CategoryAnalyzer).Warn("instrument: analysis failed: %v", err)
		return model.FileCompositionResult{}, err
	}
	logging.Generator("instrument: analyzed %d function(s)", len(analysis.Functions))

	items := make([]model.WorkItem, 0, len(analysis.Functions))
	for _, fn := range analysis.Functions {
		// Nested functions are bookkeeping records only: their sites are
		// already folded into the enclosing function's plan, and their
		// spans overlap the outer record's, so dispatching them would have
		// the composer substitute the same byte range twice.
		if fn.ParentRef != "" {
			continue
		}
		plan := analysis.Plans[fn.Name]
		fp := fingerprint.Compute(fn, language, plan, c.lessons.Version())
		items = append(items, model.WorkItem{
			Function:              fn,
			Plan:                  plan,
			Fingerprint:           fp.String(),
			OriginalFunctionBytes: fn.OriginalText(sourceBytes),
		})
	}

	sandboxTimeout := time.Duration(opts.SandboxTimeoutMs) * time.Millisecond
	oracleCtxTimeout := time.Duration(opts.OracleTimeoutMs) * time.Millisecond

	results := dispatcher.RunBatch(ctx, items, dispatcher.Options{MaxWorkers: opts.MaxWorkers}, func(ctx context.Context, item model.WorkItem) model.WorkResult {
		return c.processItem(ctx, item, language, sandboxTimeout, oracleCtxTimeout, opts.MaxRefactorAttempts)
	})

	composeItems := make([]composer.Item, len(items))
	for i, item := range items {
		composeItems[i] = composer.Item{Function: item.Function, Result: results[i]}
	}

	return composer.Compose(sourceBytes, composeItems), nil
}

// processItem runs one Work Item's full pipeline: cache lookup (and
// execution on hit), or generate -> validate -> (refactor)* -> store ->
// execute on miss.
func (c *Core) processItem(ctx context.Context, item model.WorkItem, lang model.Language, sandboxTimeout, oracleTimeout time.Duration, maxRefactorAttempts int) model.WorkResult {
	start := time.Now()
	fn := item.Function

	if entry, transformer, _, ok, err := c.cache.Lookup(item.Fingerprint); err != nil {
		logging.Get(logging.CategoryCache).Warn("cache lookup error for %s: %v, bypassing cache", fn.Name, err)
	} else if ok {
		// Guard against an accidental digest collision: the embedded
		// function name and language must match the Work Item's before the
		// cached Transformer is trusted. A mismatch degrades to a miss.
		if entry.FunctionName != fn.Name || entry.Language != lang {
			logging.Get(logging.CategoryCache).Warn("cache entry %s embeds %s/%s, want %s/%s, regenerating", item.Fingerprint, entry.FunctionName, entry.Language, fn.Name, lang)
		} else {
			text, runErr := c.execute(ctx, transformer, item.OriginalFunctionBytes, sandboxTimeout)
			if runErr != nil {
				return *runErr
			}
			return model.SuccessResult(text, true, time.Since(start))
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
	transformer, err := c.generator.Generate(genCtx, fn, item.Plan, lang)
	cancel()
	if err != nil {
		return model.FailureResult(model.KindGeneration, err.Error())
	}

	result := c.validator.Validate(ctx, transformer, fn, item.Plan, lang)
	if result.Status != validator.Valid {
		refactorCtx, rcancel := context.WithTimeout(ctx, oracleTimeout)
		refactored, rerr := c.refactor.Refactor(refactorCtx, transformer, result.Reasons, fn, item.Plan, lang, 0)
		rcancel()
		if rerr != nil {
			return model.FailureResult(model.KindValidation, rerr.Error())
		}
		transformer = refactored
	}

	test := validator.SynthesizeTest(fn, item.Plan, lang)
	if _, err := c.cache.Store(item.Fingerprint, transformer, test, model.Provenance{
		GeneratorMode:       transformer.Mode,
		LessonCorpusVersion: c.lessons.Version(),
		RefactorAttempts:    transformer.RefactorAttempt,
	}); err != nil {
		logging.Get(logging.CategoryCache).Warn("cache store error for %s: %v, proceeding without caching", fn.Name, err)
	}

	text, runErr := c.execute(ctx, transformer, item.OriginalFunctionBytes, sandboxTimeout)
	if runErr != nil {
		return *runErr
	}
	return model.SuccessResult(text, false, time.Since(start))
}

// execute runs a validated Transformer under the Sandbox against the
// function's original bytes, translating a timeout or non-zero exit into
// an ExecutionError/TimeoutError WorkResult.
func (c *Core) execute(ctx context.Context, transformer model.Transformer, input []byte, timeout time.Duration) (string, *model.WorkResult) {
	res, err := c.sandbox.Execute(ctx, transformer, input, timeout)
	if err != nil {
		fr := model.FailureResult(model.KindExecution, err.Error())
		return "", &fr
	}
	if res.TimedOut {
		fr := model.FailureResult(model.KindTimeout, "sandbox execution exceeded its wall timeout")
		return "", &fr
	}
	if res.ExitCode != 0 {
		fr := model.FailureResult(model.KindExecution, fmt.Sprintf("transformer exited %d: %s", res.ExitCode, res.Stderr))
		return "", &fr
	}
	if !utf8.Valid(res.Stdout) {
		fr := model.FailureResult(model.KindEncoding, "transformer produced non-UTF-8 stdout")
		return "", &fr
	}
	return string(res.Stdout), nil
}
