package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"docrag/internal/cascade"
	"docrag/internal/config"
	"docrag/internal/db"
	"docrag/internal/documents"
	"docrag/internal/metrics"
	"docrag/internal/projects"
	"docrag/internal/quota"
	"docrag/internal/retrieval"
	"docrag/internal/store"
	"docrag/internal/store/memory"
	"docrag/internal/store/postgres"
	"docrag/internal/sweep"
	"docrag/services/blob"
	"docrag/services/embed"
	"docrag/services/ingest"
	"docrag/services/parse"
	"docrag/services/qdrant"
	"docrag/services/throttle"
)

// app holds every backend selected by the configuration.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics

	registry  store.DocumentRegistry
	links     store.ScopeLinks
	chunks    store.ChunkStore
	index     store.VectorIndex
	blobs     blob.Store
	directory projects.Directory
	ledger    quota.Ledger
	embedder  embed.Embedder
	limiter   throttle.Limiter

	pipeline *ingest.Pipeline
	cascade  *cascade.Orchestrator

	pool   *sql.DB
	redis  *redis.Client
	closer []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openIndex(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openBlobs(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openEmbedder(); err != nil {
		a.Close()
		return nil, err
	}
	a.openLimiter()

	a.pipeline = &ingest.Pipeline{
		Registry:    a.registry,
		Chunks:      a.chunks,
		Index:       a.index,
		Blobs:       a.blobs,
		Embedder:    a.embedder,
		Limiter:     a.limiter,
		Chunker:     parse.Chunker{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		BatchSize:   cfg.EmbeddingBatchSize,
		MaxAttempts: cfg.IngestMaxAttempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
		Metrics: a.metrics,
	}
	a.cascade = &cascade.Orchestrator{
		Registry: a.registry,
		Links:    a.links,
		Chunks:   a.chunks,
		Index:    a.index,
		Blobs:    a.blobs,
		Metrics:  a.metrics,
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	if a.cfg.StoreDriver == "memory" {
		logrus.Warn("using in-memory stores, data is lost on exit")
		st := memory.New()
		a.registry, a.links, a.chunks = st, st, st
		a.directory = projects.NewMemory()
		a.ledger = quota.NewMemoryLedger()
		return nil
	}

	drv, err := db.Open(ctx, a.cfg.DBURL)
	if err != nil {
		return err
	}
	a.closer = append(a.closer, drv.Close)
	a.pool = db.SQL(drv)
	if err := db.Migrate(ctx, drv); err != nil {
		return err
	}
	a.registry = &postgres.Documents{DB: a.pool}
	a.links = &postgres.ScopeLinks{DB: a.pool}
	a.chunks = &postgres.Chunks{DB: a.pool}
	a.directory = &projects.Service{DB: a.pool}
	a.ledger = &quota.PostgresLedger{DB: a.pool}
	return nil
}

func (a *app) openIndex(ctx context.Context) error {
	if a.cfg.VectorDriver == "memory" {
		a.index = memory.NewIndex(a.cfg.EmbeddingDimensions)
		return nil
	}
	points, collections, conn, err := qdrant.NewClient(ctx, a.cfg.QdrantHost, a.cfg.QdrantPort)
	if err != nil {
		return err
	}
	a.closer = append(a.closer, conn.Close)
	if err := qdrant.EnsureCollectionExists(ctx, collections, points, a.cfg.QdrantCollection, a.cfg.EmbeddingDimensions); err != nil {
		return err
	}
	a.index = &qdrant.Index{Points: points, Collection: a.cfg.QdrantCollection, Dimension: a.cfg.EmbeddingDimensions}
	return nil
}

func (a *app) openBlobs(ctx context.Context) error {
	switch a.cfg.BlobDriver {
	case "minio":
		s, err := blob.NewMinIO(ctx, blob.MinIOConfig{
			Endpoint:  a.cfg.MinioEndpoint,
			AccessKey: a.cfg.MinioAccessKey,
			SecretKey: a.cfg.MinioSecretKey,
			Bucket:    a.cfg.MinioBucket,
			UseSSL:    a.cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		a.blobs = s
	default:
		s, err := blob.NewFS(a.cfg.BlobDir)
		if err != nil {
			return err
		}
		a.blobs = s
	}
	return nil
}

func (a *app) openEmbedder() error {
	if a.cfg.EmbeddingProvider == "hashing" {
		logrus.Warn("using the offline hashing embedder")
		a.embedder = embed.NewHashing(a.cfg.EmbeddingDimensions)
		return nil
	}
	c, err := embed.NewClient(embed.ClientConfig{
		APIKey:     a.cfg.OpenAIAPIKey,
		BaseURL:    a.cfg.EmbeddingBaseURL,
		Model:      a.cfg.EmbeddingModel,
		Dimensions: a.cfg.EmbeddingDimensions,
	})
	if err != nil {
		return err
	}
	a.embedder = c
	return nil
}

func (a *app) openLimiter() {
	policy := throttle.Policy{
		Cooldown:    a.cfg.IngestCooldown,
		QuotaWindow: a.cfg.IngestQuotaWindow,
		QuotaLimit:  a.cfg.IngestQuotaLimit,
	}
	if a.cfg.RedisAddr == "" {
		a.limiter = throttle.NewMemory(policy)
		return
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	a.closer = append(a.closer, a.redis.Close)
	a.limiter = throttle.NewRedis(a.redis, policy)
}

func (a *app) documents(submitter documents.Submitter) *documents.Service {
	return &documents.Service{
		Registry:           a.registry,
		Links:              a.links,
		Chunks:             a.chunks,
		Blobs:              a.blobs,
		Directory:          a.directory,
		Resolver:           &retrieval.Resolver{Links: a.links},
		Engine:             &retrieval.Engine{Index: a.index, Chunks: a.chunks, Registry: a.registry, Metrics: a.metrics},
		Cascade:            a.cascade,
		Ledger:             a.ledger,
		Ingest:             submitter,
		Embedder:           a.embedder,
		MaxFileSize:        a.cfg.MaxFileSize,
		MaxScopeSize:       a.cfg.MaxScopeSize,
		DefaultTopK:        a.cfg.SearchDefaultTopK,
		RelevanceThreshold: a.cfg.RelevanceThreshold,
	}
}

func (a *app) sweeper(submitter sweep.Submitter, dryRun bool) *sweep.Sweeper {
	return &sweep.Sweeper{
		Registry:   a.registry,
		Links:      a.links,
		Chunks:     a.chunks,
		Index:      a.index,
		Blobs:      a.blobs,
		Cascade:    a.cascade,
		Ingest:     submitter,
		Directory:  a.directory,
		Ledger:     a.ledger,
		BlobGrace:  a.cfg.SweepBlobGrace,
		StuckAfter: a.cfg.StuckPendingAfter,
		DryRun:     dryRun,
		Metrics:    a.metrics,
	}
}

func (a *app) health(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			logrus.WithError(err).Warn("error closing resource")
		}
	}
	a.closer = nil
}
