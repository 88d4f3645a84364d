package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/scoutgrid/leadscout/internal/lead"
)

func TestStoreLeadInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	rec := lead.Record{
		JobID:        "job-1",
		Rank:         3,
		Title:        "Acme Plumbing | Austin TX",
		URL:          "https://acmeplumbing.example",
		Domain:       "acmeplumbing.example",
		Description:  "Residential and commercial plumbing.",
		StatusCode:   200,
		UsedHeadless: false,
		FetchedAt:    now,
		DurationMs:   412,
		ContentHash:  "abc123",
		BlobURI:      "gs://bucket/path",
		CompanyName:  "Acme Plumbing",
		Emails:       []string{"info@acmeplumbing.example"},
		Phones:       []string{"+1 512 555 0100"},
		SocialLinks:  map[string]string{"instagram": "https://instagram.com/acmeplumbing"},
		Keywords:     []string{"plumbing", "austin"},
		Confidence:   0.65,
	}

	mock.ExpectExec("INSERT INTO leads").
		WithArgs(
			rec.JobID,
			rec.Rank,
			rec.Title,
			rec.URL,
			rec.Domain,
			rec.Description,
			rec.StatusCode,
			rec.UsedHeadless,
			rec.FetchedAt,
			rec.DurationMs,
			rec.ContentHash,
			rec.BlobURI,
			rec.CompanyName,
			rec.Emails,
			rec.Phones,
			rec.Addresses,
			[]byte(`{"instagram":"https://instagram.com/acmeplumbing"}`),
			rec.Industries,
			rec.FoundingYear,
			rec.Personnel,
			rec.Keywords,
			rec.Confidence,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.StoreLead(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLeadValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	err = store.StoreLead(context.Background(), lead.Record{URL: "https://example.com"})
	require.Error(t, err)

	err = store.StoreLead(context.Background(), lead.Record{JobID: "job-1"})
	require.Error(t, err)
}

func TestNewLeadStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewLeadStoreWithPool(mock, "leads; drop table users")
	require.Error(t, err)

	_, err = NewLeadStoreWithPool(nil, "leads")
	require.Error(t, err)
}
