package vectorindex

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newMockIndex(t *testing.T) (*PGIndex, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	idx := &PGIndex{pool: mockPool, logger: testLogger()}
	return idx, mockPool
}

func sampleRecord(id string) travelmodel.PoiRecord {
	return travelmodel.PoiRecord{
		PoiID:    id,
		Name:     "Tate Modern",
		Category: travelmodel.CategoryAttraction,
		RawText:  "Tate Modern. attraction",
		Source:   travelmodel.SourceWeb,
	}
}

func TestAddBatch_SkipsIDsAlreadyPresent(t *testing.T) {
	idx, mockPool := newMockIndex(t)
	defer mockPool.Close()

	mockPool.ExpectExec(`CREATE EXTENSION`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectQuery(`SELECT poi_id FROM poi_records`).
		WillReturnRows(pgxmock.NewRows([]string{"poi_id"}).AddRow("p1"))
	mockPool.ExpectExec(`INSERT INTO poi_records`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := idx.AddBatch(context.Background(), []travelmodel.PoiRecord{sampleRecord("p1"), sampleRecord("p2")})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAddBatch_InBatchDuplicatesKeepFirstOccurrence(t *testing.T) {
	idx, mockPool := newMockIndex(t)
	defer mockPool.Close()

	mockPool.ExpectExec(`CREATE EXTENSION`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectQuery(`SELECT poi_id FROM poi_records`).
		WillReturnRows(pgxmock.NewRows([]string{"poi_id"}))
	mockPool.ExpectExec(`INSERT INTO poi_records`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dup := sampleRecord("p1")
	dup.Name = "Second Copy"
	inserted, err := idx.AddBatch(context.Background(), []travelmodel.PoiRecord{sampleRecord("p1"), dup})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAddBatch_EmptyInputIsNoOp(t *testing.T) {
	idx, mockPool := newMockIndex(t)
	defer mockPool.Close()

	inserted, err := idx.AddBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSize_ReturnsCountFromQueryRow(t *testing.T) {
	idx, mockPool := newMockIndex(t)
	defer mockPool.Close()

	mockPool.ExpectExec(`CREATE EXTENSION`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectQuery(`SELECT count\(\*\) FROM poi_records`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := idx.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSearchByText_NoEmbedderReturnsVectorIndexError(t *testing.T) {
	idx, mockPool := newMockIndex(t)
	defer mockPool.Close()

	mockPool.ExpectExec(`CREATE EXTENSION`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	_, err := idx.SearchByText(context.Background(), "museums", 5, "")
	require.Error(t, err)
	var vErr *VectorIndexError
	assert.ErrorAs(t, err, &vErr)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestClampRelevance_BoundsToUnitInterval(t *testing.T) {
	assert.Equal(t, 0.0, clampRelevance(-0.3))
	assert.Equal(t, 1.0, clampRelevance(1.4))
	assert.Equal(t, 0.5, clampRelevance(0.5))
}
