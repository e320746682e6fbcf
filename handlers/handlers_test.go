package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"braid-project/braid"
	"braid-project/db"
	"braid-project/handlers"
	"braid-project/logger"
	"braid-project/models"
	"braid-project/routers"
)

func testServer(t *testing.T) *mux.Router {
	t.Helper()
	router, _ := testServerWithStore(t)
	return router
}

// testServerWithStore also returns the store so tests can damage it directly.
func testServerWithStore(t *testing.T) (*mux.Router, *db.LevelDB) {
	t.Helper()
	logger.Logger = zap.NewNop()

	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	b, err := braid.New(ldb, braid.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	handler := handlers.NewHandler(b)
	router := mux.NewRouter()
	routers.RegisterRoutes(router, handler)
	return router, ldb
}

func hashOf(b byte) models.Hash {
	var h models.Hash
	h[0] = b
	return h
}

func do(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(method, path, reader))
	return res
}

func postBead(t *testing.T, router *mux.Router, hash models.Hash, parents ...models.Hash) *httptest.ResponseRecorder {
	t.Helper()
	return do(router, http.MethodPost, "/beads", map[string]interface{}{
		"hash":       hash,
		"parents":    parents,
		"difficulty": 1,
	})
}

func decode(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), v), res.Body.String())
}

func TestInsertBead_Success(t *testing.T) {
	router := testServer(t)

	res := postBead(t, router, hashOf(1), models.GenesisHash)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = do(router, http.MethodGet, "/beads/"+hashOf(1).String(), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var bead models.Bead
	decode(t, res, &bead)
	assert.Equal(t, hashOf(1), bead.Hash)
	assert.Equal(t, []models.Hash{models.GenesisHash}, bead.Parents)
	assert.Equal(t, uint64(1), bead.Difficulty)
}

func TestInsertBead_Duplicate(t *testing.T) {
	router := testServer(t)

	require.Equal(t, http.StatusCreated, postBead(t, router, hashOf(1), models.GenesisHash).Code)
	res := postBead(t, router, hashOf(1), models.GenesisHash)
	assert.Equal(t, http.StatusConflict, res.Code, res.Body.String())
}

func TestInsertBead_Rejected(t *testing.T) {
	router := testServer(t)
	require.Equal(t, http.StatusCreated, postBead(t, router, hashOf(1), models.GenesisHash).Code)

	res := postBead(t, router, hashOf(2), hashOf(9))
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code, res.Body.String())

	res = postBead(t, router, hashOf(3), hashOf(1), models.GenesisHash)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), "incest")
}

func TestInsertBead_BadPayload(t *testing.T) {
	router := testServer(t)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/beads", bytes.NewReader([]byte(`{"hash":"zz"}`))))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGetBead_NotFoundAndBadHash(t *testing.T) {
	router := testServer(t)

	res := do(router, http.MethodGet, "/beads/"+hashOf(7).String(), nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = do(router, http.MethodGet, "/beads/nothex", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestTipsCohortsAndSiblings(t *testing.T) {
	router := testServer(t)
	x, y, z := hashOf(1), hashOf(2), hashOf(3)
	require.Equal(t, http.StatusCreated, postBead(t, router, x, models.GenesisHash).Code)
	require.Equal(t, http.StatusCreated, postBead(t, router, y, models.GenesisHash).Code)

	var tips struct {
		Tips []models.Hash `json:"tips"`
	}
	res := do(router, http.MethodGet, "/tips", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &tips)
	assert.Equal(t, []models.Hash{x, y}, tips.Tips)

	var siblings struct {
		Siblings []models.Hash `json:"siblings"`
	}
	res = do(router, http.MethodGet, "/beads/"+x.String()+"/siblings", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &siblings)
	assert.Equal(t, []models.Hash{y}, siblings.Siblings)

	require.Equal(t, http.StatusCreated, postBead(t, router, z, x, y).Code)

	var cohort struct {
		Height  uint64        `json:"height"`
		Members []models.Hash `json:"members"`
	}
	res = do(router, http.MethodGet, "/beads/"+y.String()+"/cohort", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &cohort)
	assert.Equal(t, uint64(1), cohort.Height)
	assert.Equal(t, []models.Hash{x, y}, cohort.Members)

	var cohorts struct {
		Cohorts [][]models.Hash `json:"cohorts"`
	}
	res = do(router, http.MethodGet, "/cohorts?from=1", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &cohorts)
	assert.Equal(t, [][]models.Hash{{x, y}, {z}}, cohorts.Cohorts)

	var ancestors struct {
		Ancestors []models.Hash `json:"ancestors"`
	}
	res = do(router, http.MethodGet, "/beads/"+z.String()+"/ancestors", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &ancestors)
	assert.Equal(t, []models.Hash{models.GenesisHash, x, y}, ancestors.Ancestors)

	res = do(router, http.MethodGet, "/cohorts?from=5&to=2", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestReindexEndpoint(t *testing.T) {
	router := testServer(t)
	require.Equal(t, http.StatusCreated, postBead(t, router, hashOf(1), models.GenesisHash).Code)

	res := do(router, http.MethodPost, "/reindex", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var children struct {
		Children []models.Hash `json:"children"`
	}
	res = do(router, http.MethodGet, "/beads/"+models.GenesisHash.String()+"/children", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &children)
	assert.Equal(t, []models.Hash{hashOf(1)}, children.Children)
}

func TestInsertBead_LoggedOnce(t *testing.T) {
	router := testServer(t)
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Logger = zap.New(core)

	require.Equal(t, http.StatusCreated, postBead(t, router, hashOf(1), models.GenesisHash).Code)
	assert.Equal(t, 1, logs.FilterMessage("Inserted bead").Len())
}

func TestInternalErrorHidesDetails(t *testing.T) {
	router, ldb := testServerWithStore(t)
	require.Equal(t, http.StatusCreated, postBead(t, router, hashOf(1), models.GenesisHash).Code)

	// Genesis has a child, so a tip record for it is a corrupt index.
	tx, err := ldb.OpenTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Put(append([]byte("tip/"), models.GenesisHash[:]...), nil))
	require.NoError(t, tx.Commit())

	core, logs := observer.New(zapcore.DebugLevel)
	logger.Logger = zap.New(core)

	res := do(router, http.MethodGet, "/tips", nil)
	require.Equal(t, http.StatusInternalServerError, res.Code)
	var body map[string]string
	decode(t, res, &body)
	assert.Equal(t, map[string]string{"error": "Internal server error"}, body)

	entries := logs.FilterMessage("Failed to get tips").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["error"], "corrupt index")
}
