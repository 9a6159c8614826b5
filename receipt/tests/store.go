package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lxpay/receipt-store/query"
	"github.com/lxpay/receipt-store/receipt"
)

func RunStoreTests(t *testing.T, s receipt.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s receipt.Store){
		testReceiptStore_HappyPath,
		testReceiptStore_IdempotentApply,
		testReceiptStore_FamilyIsolation,
		testReceiptStore_QueryOptions,
		testReceiptStore_RejectsInvalidRow,
	} {
		tf(t, s)
		teardown()
	}
}

func testRow(id, family string, purchased time.Time, expires *time.Time) *receipt.Row {
	return &receipt.Row{
		TransactionID:         id,
		OriginalTransactionID: id,
		ProductID:             family + ".monthly",
		ProductFamily:         family,
		PurchaseDate:          purchased,
		ExpiresDate:           expires,
		RawReceiptData:        []byte("receipt-" + id),
	}
}

func testReceiptStore_HappyPath(t *testing.T, s receipt.Store) {
	ctx := context.Background()

	rows, err := s.QueryFamily(ctx, "pro")
	require.NoError(t, err)
	require.Empty(t, rows)

	purchased := time.Now().UTC().Truncate(time.Second)
	expires := purchased.Add(30 * 24 * time.Hour)
	expected := testRow("1000", "pro", purchased, &expires)
	expected.IsTrialPeriod = true

	require.NoError(t, s.Apply(ctx, expected))

	rows, err = s.QueryFamily(ctx, "pro")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	actual := rows[0]
	require.Equal(t, expected.TransactionID, actual.TransactionID)
	require.Equal(t, expected.OriginalTransactionID, actual.OriginalTransactionID)
	require.Equal(t, expected.ProductID, actual.ProductID)
	require.Equal(t, expected.ProductFamily, actual.ProductFamily)
	require.True(t, expected.PurchaseDate.Equal(actual.PurchaseDate))
	require.NotNil(t, actual.ExpiresDate)
	require.True(t, expires.Equal(*actual.ExpiresDate))
	require.True(t, actual.IsTrialPeriod)
	require.Equal(t, expected.RawReceiptData, actual.RawReceiptData)
}

func testReceiptStore_IdempotentApply(t *testing.T, s receipt.Store) {
	ctx := context.Background()

	purchased := time.Now().UTC().Truncate(time.Second)
	row := testRow("2000", "pro", purchased, nil)

	require.NoError(t, s.Apply(ctx, row))
	require.Equal(t, receipt.ErrExists, s.Apply(ctx, row))

	// A colliding transaction id never produces a second row, even when the
	// rest of the payload differs.
	other := testRow("2000", "pro", purchased.Add(time.Hour), nil)
	require.Equal(t, receipt.ErrExists, s.Apply(ctx, other))

	rows, err := s.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, purchased.Equal(rows[0].PurchaseDate))
}

func testReceiptStore_FamilyIsolation(t *testing.T, s receipt.Store) {
	ctx := context.Background()

	purchased := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Apply(ctx, testRow("3000", "pro", purchased, nil)))
	require.NoError(t, s.Apply(ctx, testRow("3001", "plus", purchased, nil)))

	rows, err := s.QueryFamily(ctx, "pro")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "3000", rows[0].TransactionID)

	rows, err = s.QueryFamily(ctx, "plus")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "3001", rows[0].TransactionID)

	rows, err = s.QueryFamily(ctx, "enterprise")
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = s.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func testReceiptStore_QueryOptions(t *testing.T, s receipt.Store) {
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"4000", "4001", "4002"} {
		require.NoError(t, s.Apply(ctx, testRow(id, "pro", base.Add(time.Duration(i)*time.Hour), nil)))
	}

	rows, err := s.QueryFamily(ctx, "pro", query.WithDescending())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "4002", rows[0].TransactionID)
	require.Equal(t, "4000", rows[2].TransactionID)

	rows, err = s.QueryFamily(ctx, "pro", query.WithLimit(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "4000", rows[0].TransactionID)
}

func testReceiptStore_RejectsInvalidRow(t *testing.T, s receipt.Store) {
	ctx := context.Background()

	row := testRow("", "pro", time.Now(), nil)
	err := s.Apply(ctx, row)
	require.Error(t, err)
	require.Equal(t, receipt.CodeInvalidReceiptTableRow, receipt.CodeOf(err))

	rows, err := s.QueryAll(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}
