package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xhad/sectionrag/internal/logging"
	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/types"
	cfgPkg "github.com/xhad/sectionrag/pkg/config"
	"github.com/xhad/sectionrag/pkg/llm"
	"github.com/xhad/sectionrag/pkg/loader"
	"github.com/xhad/sectionrag/pkg/pipeline"
	"github.com/xhad/sectionrag/pkg/processor"
	"github.com/xhad/sectionrag/pkg/scraper"
	"github.com/xhad/sectionrag/pkg/store"
	"github.com/xhad/sectionrag/server"
)

type app struct {
	cfg      *cfgPkg.Config
	logger   zerolog.Logger
	store    types.SectionStore
	chunker  types.Chunker
	embedder types.Embedder
	chat     server.Answerer
}

func newApp(ctx context.Context, cfg *cfgPkg.Config, withChat bool) (*app, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{Encoding: cfg.Processor.Encoding})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		RateLimit: cfg.Embedder.RateLimit,
		Burst:     cfg.Embedder.Burst,
	}, logging.Component(logger, "embedder"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	st, err := store.Open(ctx, store.Config{
		Backend:     cfg.Database.Backend,
		URL:         cfg.Database.URL,
		TableName:   cfg.Database.TableName,
		VectorDim:   cfg.Database.VectorDim,
		Lists:       cfg.Database.Lists,
		SearchLimit: cfg.Database.SearchLimit,
		ChromemPath: cfg.Database.ChromemPath,
	}, logging.Component(logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		chunker:  chunker,
		embedder: embedder,
	}

	if withChat {
		chat, err := llm.NewWithConfig(llm.ChatConfig{
			Provider:    cfg.Chat.Provider,
			Model:       cfg.Chat.Model,
			BaseURL:     cfg.Chat.BaseURL,
			APIKey:      cfg.Embedder.APIKey,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		}, logging.Component(logger, "chat"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
		a.chat = chat
	}

	return a, nil
}

func (a *app) close() {
	a.store.Close()
}

func (a *app) coordinator(onProgress func(models.SectionReport)) *pipeline.Coordinator {
	return pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		MaxTokens:    a.cfg.Processor.MaxTokens,
		Concurrency:  a.cfg.Ingest.Concurrency,
		EmbedTimeout: a.cfg.Embedder.Timeout,
		StoreTimeout: a.cfg.Database.Timeout,
		OnProgress:   onProgress,
	}, a.chunker, a.embedder, a.store, logging.Component(a.logger, "ingest"))
}

func (a *app) searcher() *pipeline.Searcher {
	return pipeline.NewSearcher(pipeline.SearcherConfig{
		DefaultLimit: a.cfg.Database.SearchLimit,
		EmbedTimeout: a.cfg.Embedder.Timeout,
		StoreTimeout: a.cfg.Database.Timeout,
	}, a.embedder, a.store, logging.Component(a.logger, "search"))
}

func (a *app) initStore(ctx context.Context, out io.Writer) error {
	if err := a.store.Init(ctx); err != nil {
		return err
	}
	n, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	success.Fprintf(out, "✓ %s store ready (%d dimensions, %d sections)\n", a.cfg.Database.Backend, a.store.Dimension(), n)
	return nil
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func (a *app) ingest(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	byHeading := fs.Bool("by-heading", false, "Split markdown files into one section per heading")
	var urls stringList
	fs.Var(&urls, "url", "Page to scrape (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 && len(urls) == 0 {
		return errors.New("ingest needs at least one path or -url")
	}

	var sections []models.Section
	for _, path := range fs.Args() {
		loaded, err := loader.Load(path, *byHeading)
		if err != nil {
			return err
		}
		sections = append(sections, loaded...)
	}

	for _, u := range urls {
		scraped, err := a.scrape(ctx, u, out)
		if err != nil {
			return err
		}
		sections = append(sections, scraped...)
	}

	if len(sections) == 0 {
		warn.Fprintln(out, "Nothing to ingest")
		return nil
	}

	bar := getProgressBar(out, len(sections), " Ingesting sections")
	batch, err := a.coordinator(func(models.SectionReport) { _ = bar.Add(1) }).IngestMany(ctx, sections)
	_ = bar.Finish()
	fmt.Fprintln(out)

	printReport(out, batch)
	if err != nil {
		return err
	}
	if batch.Failed() > 0 {
		return fmt.Errorf("%d of %d sections were not fully ingested", batch.Failed(), len(batch.Sections))
	}
	return nil
}

func (a *app) scrape(ctx context.Context, u string, out io.Writer) ([]models.Section, error) {
	spinner := getSpinner(out, " Scraping "+u)
	sc, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        u,
		MaxDepth:       a.cfg.Scraper.MaxDepth,
		RateLimit:      a.cfg.Scraper.RateLimit,
		IgnorePatterns: a.cfg.Scraper.IgnorePatterns,
		OnProgress:     func(string) { _ = spinner.Add(1) },
	}, logging.Component(a.logger, "scraper"))
	if err != nil {
		return nil, err
	}

	sections, err := sc.Scrape(ctx, u)
	_ = spinner.Finish()
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", u, err)
	}
	success.Fprintf(out, "✓ Scraped %d pages from %s\n", len(sections), u)
	return sections, nil
}

func (a *app) search(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	limit := fs.Int("limit", a.cfg.Database.SearchLimit, "Maximum number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	results, err := a.searcher().Search(ctx, strings.Join(fs.Args(), " "), *limit)
	if err != nil {
		return err
	}
	printResults(out, results)
	return nil
}

func (a *app) ask(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	limit := fs.Int("limit", a.cfg.Database.SearchLimit, "Number of sections to answer from")
	stream := fs.Bool("stream", true, "Print the answer as it is generated")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() > 0 {
		return a.answer(ctx, strings.Join(fs.Args(), " "), *limit, *stream, out)
	}

	// Interactive chat loop with colored output
	heading.Fprintln(out, "\nAsk about your documents (type 'exit' to quit)")
	scanner := bufio.NewScanner(in)
	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(question, "exit") {
			return nil
		}
		if question == "" {
			continue
		}
		if err := a.answer(ctx, question, *limit, *stream, out); err != nil {
			failure.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func (a *app) answer(ctx context.Context, question string, limit int, stream bool, out io.Writer) error {
	querySpinner := getSpinner(out, " Searching documents...")
	results, err := a.searcher().Search(ctx, question, limit)
	_ = querySpinner.Finish()
	if err != nil {
		return err
	}

	assistantPrompt.Fprint(out, "\nAssistant: ")
	var onChunk func(string)
	if stream {
		onChunk = func(chunk string) { fmt.Fprint(out, chunk) }
	}

	answer, err := a.chat.Answer(ctx, question, results, onChunk)
	if err != nil {
		return err
	}
	if !stream {
		fmt.Fprint(out, answer)
	}
	fmt.Fprintln(out)

	if sources := llm.Sources(results); len(sources) > 0 {
		dim.Fprintf(out, "Sources: %s\n", strings.Join(sources, ", "))
	}
	return nil
}

func (a *app) delete(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("delete needs exactly one file path")
	}
	if err := a.store.Delete(ctx, args[0]); err != nil {
		return err
	}
	success.Fprintf(out, "✓ Deleted sections of %s\n", args[0])
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "Listen address")
	stream := fs.Bool("stream", true, "Stream answers over the websocket")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv, err := server.NewWSServer(server.Config{
		SearchLimit: a.cfg.Database.SearchLimit,
		Streaming:   *stream,
		MaxDepth:    a.cfg.Scraper.MaxDepth,
		RateLimit:   a.cfg.Scraper.RateLimit,
	}, server.Deps{
		Ingester: a.coordinator(nil),
		Searcher: a.searcher(),
		Chat:     a.chat,
		Store:    a.store,
	}, logging.Component(a.logger, "server"))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, *addr)
}
