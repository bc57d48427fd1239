package ingest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/errors"
)

const uploadHeader = "ProteinId\tSiteLocation\tSiteAA\tModificationTitle\tSiteProbability\tQuantity\tCondition"

func testSettings() *conf.Settings {
	return &conf.Settings{
		Upload: conf.UploadSettings{
			MaxErrorsReported: 10,
			DefaultOrganism:   "Homo sapiens",
		},
	}
}

func setupProcessor(t *testing.T) (*Processor, datastore.Interface) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&datastore.AnalysisSession{}, &datastore.Protein{},
		&datastore.Observation{}, &datastore.KnownSite{}))

	ds := &datastore.SQLiteStore{DataStore: datastore.DataStore{DB: db}}
	return NewProcessor(ds, testSettings(), nil), ds
}

func newSession(t *testing.T, ds datastore.Interface) string {
	t.Helper()
	session := &datastore.AnalysisSession{
		ID:     uuid.New().String(),
		Name:   "starvation run",
		Status: datastore.StatusProcessing,
	}
	require.NoError(t, ds.CreateSession(session))
	return session.ID
}

func tsv(rows ...string) *strings.Reader {
	return strings.NewReader(uploadHeader + "\n" + strings.Join(rows, "\n") + "\n")
}

func TestProcessUpload(t *testing.T) {
	t.Parallel()
	p, ds := setupProcessor(t)
	sessionID := newSession(t, ds)

	result, err := p.ProcessUpload(t.Context(), sessionID, "run1.tsv", tsv(
		"P04637\t15\tS\tPhospho (S)\t0.99\t4.2\tCtrl",
		"P04637\t15\tS\tPhospho (S)\t0.95\t3.8\tStarved",
		"P04637\t20\tT\tPhospho (T)\t0.80\t\tCtrl",
		"Q9Y6K9\t85\tK\tGlyGly (K)\t\t1.5\tCtrl",
	))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Processed.Proteins)
	assert.Equal(t, 4, result.Processed.PTMSites)
	assert.Empty(t, result.ValidationErrors)

	session, err := ds.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusCompleted, session.Status)
	assert.Equal(t, "run1.tsv", session.FileName)
	assert.Equal(t, 2, session.TotalProteins)
	assert.Equal(t, 4, session.TotalPTMSites)

	protein, err := ds.GetProtein(sessionID, "P04637")
	require.NoError(t, err)
	assert.Equal(t, "Homo sapiens", protein.Organism)

	observations, err := ds.GetObservations(protein.ID)
	require.NoError(t, err)
	require.Len(t, observations, 3)
	assert.Equal(t, "Ctrl", observations[0].Condition)
	assert.Equal(t, "Starved", observations[1].Condition)
}

func TestProcessUploadSkipsBadRows(t *testing.T) {
	t.Parallel()
	p, ds := setupProcessor(t)
	sessionID := newSession(t, ds)

	rows := make([]string, 0, 10)
	for i := 0; i < 9; i++ {
		rows = append(rows, "P04637\t15\tS\tPhospho (S)\t0.9\t1.0\tCtrl")
	}
	rows = append(rows, "P04637\tnotanumber\tS\tPhospho (S)\t0.9\t1.0\tCtrl")

	result, err := p.ProcessUpload(t.Context(), sessionID, "run2.tsv", tsv(rows...))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 9, result.Processed.PTMSites)
	require.Len(t, result.ValidationErrors, 1)
	assert.Equal(t, 10, result.ValidationErrors[0].Row)
	assert.Equal(t, 1, result.TotalRowErrors)

	session, err := ds.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusCompleted, session.Status)
}

func TestProcessUploadStructuralFailure(t *testing.T) {
	t.Parallel()
	p, ds := setupProcessor(t)
	sessionID := newSession(t, ds)

	// SiteLocation column is missing entirely.
	input := strings.NewReader("ProteinId\tSiteAA\tModificationTitle\nP04637\tS\tPhospho (S)\n")
	_, err := p.ProcessUpload(t.Context(), sessionID, "broken.tsv", input)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	session, getErr := ds.GetSession(sessionID)
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusFailed, session.Status)

	// Nothing was committed.
	proteins, listErr := ds.ListProteins(sessionID)
	require.NoError(t, listErr)
	assert.Empty(t, proteins)
	count, countErr := ds.CountObservations(sessionID)
	require.NoError(t, countErr)
	assert.Zero(t, count)
}

func TestProcessUploadCapsReportedErrors(t *testing.T) {
	t.Parallel()
	p, ds := setupProcessor(t)
	sessionID := newSession(t, ds)

	rows := make([]string, 0, 16)
	rows = append(rows, "P04637\t15\tS\tPhospho (S)\t0.9\t1.0\tCtrl")
	for i := 0; i < 15; i++ {
		rows = append(rows, "\t15\tS\tPhospho (S)\t0.9\t1.0\tCtrl")
	}

	result, err := p.ProcessUpload(t.Context(), sessionID, "noisy.tsv", tsv(rows...))
	require.NoError(t, err)

	assert.Len(t, result.ValidationErrors, 10)
	assert.Equal(t, 15, result.TotalRowErrors)
	assert.Equal(t, 1, result.Processed.PTMSites)
}

func TestProcessUploadReusesProteins(t *testing.T) {
	t.Parallel()
	p, ds := setupProcessor(t)
	sessionID := newSession(t, ds)

	_, err := p.ProcessUpload(t.Context(), sessionID, "a.tsv", tsv(
		"P04637\t15\tS\tPhospho (S)\t0.9\t1.0\tCtrl"))
	require.NoError(t, err)
	_, err = p.ProcessUpload(t.Context(), sessionID, "b.tsv", tsv(
		"P04637\t20\tT\tPhospho (T)\t0.8\t2.0\tCtrl"))
	require.NoError(t, err)

	proteins, err := ds.ListProteins(sessionID)
	require.NoError(t, err)
	require.Len(t, proteins, 1)

	count, err := ds.CountObservations(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestProcessUploadUnknownSession(t *testing.T) {
	t.Parallel()
	p, _ := setupProcessor(t)

	_, err := p.ProcessUpload(t.Context(), uuid.New().String(), "x.tsv", tsv())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
