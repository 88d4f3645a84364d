// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoutgrid/leadscout/internal/lead"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LeadStoreConfig controls the Postgres connection pool used for lead rows.
type LeadStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// LeadStore writes extracted lead rows into Postgres.
type LeadStore struct {
	pool  execCloser
	table string
}

// NewLeadStore creates a Postgres-backed LeadStore using the provided config.
func NewLeadStore(ctx context.Context, cfg LeadStoreConfig) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LeadStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(pool execCloser, table string) (*LeadStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &LeadStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreLead inserts a lead row into Postgres.
func (s *LeadStore) StoreLead(ctx context.Context, record lead.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("lead store is not configured")
	}
	if record.JobID == "" {
		return fmt.Errorf("record job id is required")
	}
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	socialJSON, err := json.Marshal(normalizeSocialLinks(record.SocialLinks))
	if err != nil {
		return fmt.Errorf("marshal social links: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	rank,
	title,
	url,
	domain,
	description,
	status_code,
	used_headless,
	fetched_at,
	duration_ms,
	content_hash,
	blob_uri,
	company_name,
	emails,
	phones,
	addresses,
	social_links,
	industries,
	founding_year,
	personnel,
	keywords,
	confidence
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
)`, s.table)

	args := []any{
		record.JobID,
		record.Rank,
		record.Title,
		record.URL,
		record.Domain,
		record.Description,
		record.StatusCode,
		record.UsedHeadless,
		record.FetchedAt,
		record.DurationMs,
		record.ContentHash,
		record.BlobURI,
		record.CompanyName,
		record.Emails,
		record.Phones,
		record.Addresses,
		socialJSON,
		record.Industries,
		record.FoundingYear,
		record.Personnel,
		record.Keywords,
		record.Confidence,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func normalizeSocialLinks(links map[string]string) map[string]string {
	if len(links) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(links))
	for k, v := range links {
		out[k] = v
	}
	return out
}
