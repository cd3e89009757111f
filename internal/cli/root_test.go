package cli

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osareniho-oni/jaffle-shop-pipeline/internal/catalog"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

func jaffleServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "orders":
			w.Write([]byte(`[
				{"id":"o1","ordered_at":"2017-08-02T10:00:00","order_total":640.0,"customer_id":"c1"},
				{"id":"o2","ordered_at":"2017-08-03T10:00:00","order_total":20.0,"customer_id":"c2"}
			]`))
		case "customers":
			w.Write([]byte(`[{"id":"c1","name":"Ann"},{"id":"c2","name":"Bob"}]`))
		case "products":
			w.Write([]byte(`[{"sku":"JAF-001","name":"nutellaphone","price":1100,"type":"jaffle"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testJob(baseURL string) Job {
	job := DefaultJob()
	job.Destination = "sqlite"
	job.Source = func() *models.Source {
		src := catalog.JaffleShopSource()
		src.Config.Client.BaseURL = baseURL
		return src
	}
	return job
}

func setupEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("PIPELINES_DIR", filepath.Join(dir, "pipelines"))
	t.Setenv("DESTINATION__SQLITE__CREDENTIALS", filepath.Join(dir, "jaffle.sqlite"))
	t.Setenv("RUNTIME__LOG_LEVEL", "ERROR")
	t.Setenv("RUNTIME__REQUEST_MAX_ATTEMPTS", "1")
	return dir
}

func TestRootCmdRunsPipeline(t *testing.T) {
	dir := setupEnv(t)
	srv := jaffleServer(t)

	var out bytes.Buffer
	cmd := newRootCmd(testJob(srv.URL))
	cmd.SetArgs([]string{})
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Pipeline rest_api_jaffle_shop load step completed")
	assert.Contains(t, out.String(), "destination sqlite and into dataset rest_api_data")

	db, err := sql.Open("sqlite3", filepath.Join(dir, "jaffle.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	var orders, customers int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "rest_api_data__orders"`).Scan(&orders))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "rest_api_data__customers"`).Scan(&customers))
	assert.Equal(t, 1, orders)
	assert.Equal(t, 2, customers)

	assert.FileExists(t, filepath.Join(dir, "pipelines", "rest_api_jaffle_shop", "sqlite", "rest_api_data", "state.json"))
}

func TestRootCmdFailsWhenAPIDown(t *testing.T) {
	dir := setupEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	cmd := newRootCmd(testJob(base))
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline rest_api_jaffle_shop failed")

	assert.NoFileExists(t, filepath.Join(dir, "pipelines", "rest_api_jaffle_shop", "sqlite", "rest_api_data", "state.json"))
}

func TestRootCmdRejectsArguments(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"orders"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestRootCmdRejectsBadConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("LOAD__WORKERS", "0")

	cmd := newRootCmd(testJob("http://127.0.0.1:1"))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOAD__WORKERS")
}

func TestDefaultJob(t *testing.T) {
	job := DefaultJob()
	assert.Equal(t, "rest_api_jaffle_shop", job.PipelineName)
	assert.Equal(t, "duckdb", job.Destination)
	assert.Equal(t, "rest_api_data", job.Dataset)
	assert.Equal(t, catalog.BaseURL, job.Source().Config.Client.BaseURL)
}
