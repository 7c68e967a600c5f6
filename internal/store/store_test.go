package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func TestInsertValidBlockIdempotent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO event_update_valid_block.*ON CONFLICT.*DO NOTHING").
		WithArgs(int64(1), "0xdead", "Qm1", int64(10), int64(100), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertValidBlock(context.Background(), ValidBlock{
		ChainID: 1, Donor: "0xdead", CID: "Qm1", UpdateBlock: 10, EndBlock: 100,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeBlockFallsBackToStart(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT MAX\\(update_block\\)").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(nil))

	bn, err := s.ResumeBlock(context.Background(), 1, 42, "event_update_valid_block")
	require.NoError(t, err)
	require.Equal(t, int64(42), bn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeBlockUsesMax(t *testing.T) {
	s, mock := newMockStore(t)
	max := int64(500)
	mock.ExpectQuery("SELECT MAX\\(update_block\\)").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&max))

	bn, err := s.ResumeBlock(context.Background(), 1, 42, "event_update_valid_block")
	require.NoError(t, err)
	require.Equal(t, int64(500), bn)
}

func TestResumeBlockQueriesPerEventTable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT MAX\\(update_block\\) FROM event_add_provider").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(nil))

	bn, err := s.ResumeBlock(context.Background(), 1, 7, "event_add_provider")
	require.NoError(t, err)
	require.Equal(t, int64(7), bn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeBlockRejectsUnknownTable(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.ResumeBlock(context.Background(), 1, 7, "drop_table_students")
	require.Error(t, err)
}

func TestSelectNewCIDsToPin(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT euvb.cid, MAX").
		WithArgs(int64(1), int64(20)).
		WillReturnRows(pgxmock.NewRows([]string{"cid", "end_block"}).AddRow("Qm1", int64(100)))

	got, err := s.SelectNewCIDsToPin(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Equal(t, []NewCIDToPin{{CID: "Qm1", EndBlock: 100}}, got)
}

func TestDeleteSharedExpiredPinnedDoesNotTouchUnpin(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM pinned_cids p1").
		WithArgs(int64(1), int64(150)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := s.DeleteSharedExpiredPinned(context.Background(), 1, 150)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsPinned(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT count\\(node\\) FROM pinned_cids").
		WithArgs("Qm1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := s.IsPinned(context.Background(), "Qm1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestSelectPinnedForDonor(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM event_update_valid_block euvb").
		WithArgs(int64(1), "0xdead", int64(20)).
		WillReturnRows(pgxmock.NewRows([]string{"cid", "donor", "ub", "eb", "c", "fc"}).
			AddRow("Qm1", "0xdead", int64(10), int64(100), int64(1), int64(0)))

	got, err := s.SelectPinnedForDonor(context.Background(), 1, "0xdead", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Qm1", got[0].CID)
}
