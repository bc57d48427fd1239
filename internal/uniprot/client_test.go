package uniprot

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmscope/ptmscope/internal/errors"
)

const testFasta = `>sp|P04637|P53_HUMAN Cellular tumor antigen p53 OS=Homo sapiens OX=9606 GN=TP53 PE=1 SV=4
MEEPQSDPSV
EPPLSQETFS
`

const testFeatures = `{
  "accession": "P04637",
  "sequence": "MEEPQSDPSVEPPLSQETFS",
  "features": [
    {
      "type": "MOD_RES",
      "category": "PTM",
      "description": "Phosphoserine; by CK2",
      "begin": "15",
      "end": "15",
      "evidences": [
        {"code": "ECO:0000269", "source": {"name": "PubMed", "id": "12345"}},
        {"code": "ECO:0000269", "source": {"name": "PubMed", "id": "67890"}}
      ]
    },
    {
      "type": "MOD_RES",
      "category": "PTM",
      "description": "N6-acetyllysine",
      "begin": "9",
      "end": "9",
      "evidences": []
    },
    {
      "type": "DOMAIN",
      "category": "DOMAINS_AND_SITES",
      "description": "DNA-binding",
      "begin": "94",
      "end": "312"
    },
    {
      "type": "MOD_RES",
      "category": "PTM",
      "description": "Phosphothreonine",
      "begin": "unknown",
      "end": "unknown"
    }
  ]
}`

// newTestClient returns a client with httpmock installed on its transport.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	client := NewClient(Config{
		BaseURL:        "https://uniprot.test/uniprotkb",
		ProteinsAPIURL: "https://proteins.test/features",
		Timeout:        5 * time.Second,
		CacheTTL:       time.Hour,
		RateLimitMS:    1,
	})
	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(func() {
		httpmock.DeactivateAndReset()
		client.Close()
	})
	return client
}

func TestFetchSequence(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://uniprot.test/uniprotkb/P04637.fasta",
		httpmock.NewStringResponder(http.StatusOK, testFasta))

	seq, err := client.FetchSequence(t.Context(), "P04637")
	require.NoError(t, err)
	assert.Equal(t, "MEEPQSDPSVEPPLSQETFS", seq)
}

func TestFetchSequenceCached(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://uniprot.test/uniprotkb/P04637.fasta",
		httpmock.NewStringResponder(http.StatusOK, testFasta))

	_, err := client.FetchSequence(t.Context(), "P04637")
	require.NoError(t, err)
	_, err = client.FetchSequence(t.Context(), "P04637")
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	metrics := client.GetMetrics()
	assert.Equal(t, int64(1), metrics.CacheHits)
	assert.Equal(t, int64(1), metrics.CacheMisses)
}

func TestFetchSequenceNotFound(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://uniprot.test/uniprotkb/BADACC.fasta",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := client.FetchSequence(t.Context(), "BADACC")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	// Client errors are permanent, no retries.
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetchSequenceRetriesServerErrors(t *testing.T) {
	client := newTestClient(t)
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, "https://uniprot.test/uniprotkb/P04637.fasta",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, testFasta), nil
		})

	seq, err := client.FetchSequence(t.Context(), "P04637")
	require.NoError(t, err)
	assert.Equal(t, "MEEPQSDPSVEPPLSQETFS", seq)
	assert.Equal(t, 3, calls)
}

func TestFetchSequenceEmptyBody(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://uniprot.test/uniprotkb/P04637.fasta",
		httpmock.NewStringResponder(http.StatusOK, ">sp|P04637| header only\n"))

	_, err := client.FetchSequence(t.Context(), "P04637")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestFetchKnownSites(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://proteins.test/features/P04637",
		httpmock.NewStringResponder(http.StatusOK, testFeatures))

	sites, err := client.FetchKnownSites(t.Context(), "P04637")
	require.NoError(t, err)
	// The DOMAIN feature and the unparseable-position MOD_RES are dropped.
	require.Len(t, sites, 2)

	phospho := sites[0]
	assert.Equal(t, 15, phospho.Position)
	assert.Equal(t, "S", phospho.AminoAcid, "residue letter from the document sequence")
	assert.Equal(t, "Phosphoserine", phospho.ModificationType, "qualifier clause stripped")
	assert.Equal(t, []string{"PMID:12345", "PMID:67890"}, phospho.References)

	acetyl := sites[1]
	assert.Equal(t, 9, acetyl.Position)
	assert.Equal(t, "S", acetyl.AminoAcid)
	assert.Empty(t, acetyl.References)
}

func TestFetchKnownSitesBadJSON(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://proteins.test/features/P04637",
		httpmock.NewStringResponder(http.StatusOK, "<html>not json</html>"))

	_, err := client.FetchKnownSites(t.Context(), "P04637")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestDefaultsApplied(t *testing.T) {
	client := NewClient(Config{})
	defer client.Close()

	assert.Equal(t, DefaultConfig().BaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultConfig().Timeout, client.config.Timeout)
}
