package etl

import (
	"context"
	"maps"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/logger"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

const StatusEmpty = "empty"

// Options configures a pipeline run. Worker counts bound the concurrency
// of each stage; BufferMaxItems sizes extract buffers and FileMaxItems the
// row count of a single load job.
type Options struct {
	Identity
	ExtractWorkers   int
	NormalizeWorkers int
	LoadWorkers      int
	BufferMaxItems   int
	FileMaxItems     int
	HTTP             ClientOptions
}

type Pipeline struct {
	Options
	Loader Loader
	State  *StateStore
}

// NewPipeline creates a pipeline. Non-positive knobs fall back to 1 worker
// and unbounded buffers.
func NewPipeline(opts Options, loader Loader, state *StateStore) *Pipeline {
	opts.ExtractWorkers = max(opts.ExtractWorkers, 1)
	opts.NormalizeWorkers = max(opts.NormalizeWorkers, 1)
	opts.LoadWorkers = max(opts.LoadWorkers, 1)
	return &Pipeline{
		Options: opts,
		Loader:  loader,
		State:   state,
	}
}

type resourceData struct {
	resource    *models.ResourceConfig
	incremental *Incremental
	buffers     [][]models.Record
	pages       int
	items       int
}

type normalizedBuffer struct {
	rows []models.Record
	cols []models.Column
}

type tableJob struct {
	schema *models.TableSchema
	chunks [][]models.Record
	rows   int
}

// Run extracts, normalizes and loads every resource of src, then persists
// the incremental cursors. On any error nothing is committed to the state
// and no LoadInfo is returned.
func (p *Pipeline) Run(ctx context.Context, src *models.Source) (*LoadInfo, error) {
	if err := src.Config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "source %q", src.Name)
	}

	started := time.Now().UTC()
	loadID := strconv.FormatFloat(float64(started.UnixMicro())/1e6, 'f', 6, 64)

	state, err := p.State.Load(p.Identity)
	if err != nil {
		return nil, err
	}

	logger.Infow("Starting pipeline",
		"pipeline", p.Name, "destination", p.Destination, "dataset", p.Dataset,
		"source", src.Name, "load_id", loadID)

	data, err := p.extract(ctx, src, state)
	if err != nil {
		return nil, errors.Wrap(err, "extract")
	}

	tables, err := p.normalize(ctx, data, loadID)
	if err != nil {
		return nil, errors.Wrap(err, "normalize")
	}

	loads, err := p.load(ctx, tables)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}

	for _, rd := range data {
		if rd.incremental == nil {
			continue
		}
		state.Resources[rd.resource.Name] = &ResourceState{
			CursorPath:   rd.incremental.CursorPath,
			LastValue:    rd.incremental.LastValue,
			UniqueHashes: rd.incremental.UniqueHashes(),
		}
	}
	state.LastLoadID = loadID
	state.UpdatedAt = time.Now().UTC()
	if err := p.State.Save(state); err != nil {
		return nil, err
	}

	info := &LoadInfo{
		Pipeline:    p.Name,
		Destination: p.Destination,
		Dataset:     p.Dataset,
		LoadID:      loadID,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
		Tables:      loads,
	}
	logger.Infow("Pipeline finished", "pipeline", p.Name, "load_id", loadID,
		"duration", info.FinishedAt.Sub(started).String())
	return info, nil
}

func (p *Pipeline) extract(ctx context.Context, src *models.Source, state *PipelineState) ([]*resourceData, error) {
	httpOpts := p.HTTP
	httpOpts.Headers = maps.Clone(src.Config.Client.Headers)
	client := NewClient(httpOpts)

	data := make([]*resourceData, len(src.Config.Resources))
	for i := range src.Config.Resources {
		res := &src.Config.Resources[i]
		rd := &resourceData{resource: res}
		if inc := res.Endpoint.Incremental; inc != nil {
			rd.incremental = NewIncremental(inc, state.Resource(res.Name, inc.CursorPath), res.PrimaryKey)
		}
		data[i] = rd
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.ExtractWorkers)

	run := func(rd *resourceData) error {
		ex, err := NewRESTExtractor(client, src.Config.Client, rd.resource, rd.incremental)
		if err != nil {
			return errors.Wrapf(err, "resource %q", rd.resource.Name)
		}
		return p.extractResource(gctx, ex, rd)
	}

	var sequential []*resourceData
	for _, rd := range data {
		if !rd.resource.Parallelized {
			sequential = append(sequential, rd)
			continue
		}
		rd := rd
		g.Go(func() error { return run(rd) })
	}
	if len(sequential) > 0 {
		g.Go(func() error {
			for _, rd := range sequential {
				if err := run(rd); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// extractResource pages through ex until it reports no next offset or an
// empty page, applying the incremental cursor and processing steps.
func (p *Pipeline) extractResource(ctx context.Context, ex Extractor, rd *resourceData) error {
	tr := NewTransformer(rd.resource.ProcessingSteps)

	if rd.incremental != nil {
		logger.Infow("Incremental extract", "resource", rd.resource.Name,
			"cursor", rd.incremental.CursorPath, "start_value", rd.incremental.StartValue)
	}

	var offset any
	var buf []models.Record
	for {
		records, next, err := ex.Extract(ctx, offset)
		if err != nil {
			logger.Errorf("Extraction of %s failed at page %d: %v", rd.resource.Name, rd.pages+1, err)
			return err
		}
		rd.pages++
		fetched := len(records)

		if rd.incremental != nil {
			records, err = p.trackCursor(rd, records)
			if err != nil {
				return errors.Wrapf(err, "resource %q", rd.resource.Name)
			}
		}
		records = tr.ApplyAll(records)

		for _, rec := range records {
			buf = append(buf, rec)
			if p.BufferMaxItems > 0 && len(buf) >= p.BufferMaxItems {
				rd.buffers = append(rd.buffers, buf)
				buf = nil
			}
		}
		rd.items += len(records)

		logger.Infow("Extracted page", "resource", rd.resource.Name, "page", rd.pages,
			"fetched", fetched, "kept", len(records), "total", rd.items)

		if next == nil || fetched == 0 {
			break
		}
		offset = next
	}

	if len(buf) > 0 {
		rd.buffers = append(rd.buffers, buf)
	}
	logger.Infow("Resource extracted", "resource", rd.resource.Name, "pages", rd.pages, "items", rd.items)
	return nil
}

func (p *Pipeline) trackCursor(rd *resourceData, records []models.Record) ([]models.Record, error) {
	out := records[:0:0]
	for _, rec := range records {
		keep, err := rd.incremental.Track(rec)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (p *Pipeline) normalize(ctx context.Context, data []*resourceData, loadID string) ([]*tableJob, error) {
	n := &Normalizer{LoadID: loadID}
	results := make([][]normalizedBuffer, len(data))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.NormalizeWorkers)
	for i, rd := range data {
		results[i] = make([]normalizedBuffer, len(rd.buffers))
		for j, buf := range rd.buffers {
			i, j, buf := i, j, buf
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				rows, cols := n.NormalizeBatch(buf)
				results[i][j] = normalizedBuffer{rows: rows, cols: cols}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables := make([]*tableJob, 0, len(data))
	for i, rd := range data {
		var cols []models.Column
		var rows []models.Record
		for _, nb := range results[i] {
			cols = MergeColumns(cols, nb.cols)
			rows = append(rows, nb.rows...)
		}

		schema := BuildTableSchema(rd.resource, cols)
		for k, row := range rows {
			rows[k] = CoerceRow(schema, row)
		}
		if schema.IsMerge() {
			deduped, err := NewValidator(schema).Dedupe(rows)
			if err != nil {
				return nil, err
			}
			rows = deduped
		}

		job := &tableJob{schema: schema, chunks: Chunk(rows, p.FileMaxItems), rows: len(rows)}
		logger.Infow("Normalized table", "table", schema.Name, "rows", job.rows,
			"columns", len(schema.Columns), "jobs", len(job.chunks))
		tables = append(tables, job)
	}
	return tables, nil
}

func (p *Pipeline) load(ctx context.Context, tables []*tableJob) ([]TableLoad, error) {
	results := make([]TableLoad, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.LoadWorkers)
	for i, tj := range tables {
		i, tj := i, tj
		g.Go(func() error {
			res := TableLoad{
				Table:            tj.schema.Name,
				Rows:             tj.rows,
				Jobs:             len(tj.chunks),
				WriteDisposition: tj.schema.WriteDisposition,
				Status:           StatusLoaded,
			}
			if tj.rows == 0 {
				res.Status = StatusEmpty
				results[i] = res
				return nil
			}

			if err := p.Loader.EnsureTable(gctx, tj.schema); err != nil {
				return errors.Wrapf(err, "table %q", tj.schema.Name)
			}
			if tj.schema.WriteDisposition == models.Replace {
				if err := p.Loader.Truncate(gctx, tj.schema); err != nil {
					return errors.Wrapf(err, "table %q", tj.schema.Name)
				}
			}
			for j, chunk := range tj.chunks {
				// EnsureTable may have widened column types.
				for k, row := range chunk {
					chunk[k] = CoerceRow(tj.schema, row)
				}
				if err := p.Loader.Load(gctx, tj.schema, chunk); err != nil {
					logger.Errorf("Loading job %d/%d of %s failed: %v", j+1, len(tj.chunks), tj.schema.Name, err)
					return errors.Wrapf(err, "table %q job %d", tj.schema.Name, j+1)
				}
				logger.Infow("Loaded job", "table", tj.schema.Name, "job", j+1, "of", len(tj.chunks), "rows", len(chunk))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Table < results[b].Table })
	return results, nil
}
