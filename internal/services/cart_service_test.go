package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_Add(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rdb, rmock := redismock.NewClientMock()
	service := NewCartService(db, rdb)
	ctx := context.Background()

	billStatus := q("SELECT b.bill_status FROM bills b JOIN connections c ON c.id = b.connection_id WHERE b.id = $1 AND c.organization_id = $2")

	t.Run("approved bill is added and indexed", func(t *testing.T) {
		mock.ExpectQuery(billStatus).
			WithArgs("bill-1", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"bill_status"}).AddRow("approved"))
		rmock.ExpectSAdd("cart:user-1", "bill:bill-1").SetVal(1)
		rmock.ExpectExpire("cart:user-1", cartTTL).SetVal(true)
		rmock.ExpectSMembers("cart:user-1").SetVal([]string{"bill:bill-1"})
		rmock.ExpectSAdd("cart_members:bill:bill-1", "user-1").SetVal(1)
		rmock.ExpectExpire("cart_members:bill:bill-1", cartTTL).SetVal(true)

		err := service.Add(ctx, "org-1", "user-1", CartItem{Kind: CartKindBill, ID: "bill-1"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("adding refreshes the index of items already in the cart", func(t *testing.T) {
		// bill-1 was added a day ago; its index key has expired while the
		// cart lived on. Adding bill-4 must put user-1 back on bill-1's index.
		mock.ExpectQuery(billStatus).
			WithArgs("bill-4", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"bill_status"}).AddRow("approved"))
		rmock.ExpectSAdd("cart:user-1", "bill:bill-4").SetVal(1)
		rmock.ExpectExpire("cart:user-1", cartTTL).SetVal(true)
		rmock.ExpectSMembers("cart:user-1").SetVal([]string{"bill:bill-4", "bill:bill-1"})
		rmock.ExpectSAdd("cart_members:bill:bill-1", "user-1").SetVal(1)
		rmock.ExpectExpire("cart_members:bill:bill-1", cartTTL).SetVal(true)
		rmock.ExpectSAdd("cart_members:bill:bill-4", "user-1").SetVal(1)
		rmock.ExpectExpire("cart_members:bill:bill-4", cartTTL).SetVal(true)

		err := service.Add(ctx, "org-1", "user-1", CartItem{Kind: CartKindBill, ID: "bill-4"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("new bill is refused", func(t *testing.T) {
		mock.ExpectQuery(billStatus).
			WithArgs("bill-2", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"bill_status"}).AddRow("new"))

		err := service.Add(ctx, "org-1", "user-1", CartItem{Kind: CartKindBill, ID: "bill-2"})
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("bill of another organization", func(t *testing.T) {
		mock.ExpectQuery(billStatus).
			WithArgs("bill-3", "org-1").
			WillReturnRows(sqlmock.NewRows([]string{"bill_status"}))

		err := service.Add(ctx, "org-1", "user-1", CartItem{Kind: CartKindBill, ID: "bill-3"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown kind", func(t *testing.T) {
		err := service.Add(ctx, "org-1", "user-1", CartItem{Kind: "wallet", ID: "w-1"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestCartService_ItemsAndClear(t *testing.T) {
	rdb, rmock := redismock.NewClientMock()
	service := NewCartService(nil, rdb)
	ctx := context.Background()

	t.Run("items are parsed and sorted", func(t *testing.T) {
		rmock.ExpectSMembers("cart:user-1").SetVal([]string{"recharge:r-1", "bill:b-2", "junk", "bill:b-1"})

		items, err := service.Items(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []CartItem{
			{Kind: CartKindBill, ID: "b-1"},
			{Kind: CartKindBill, ID: "b-2"},
			{Kind: CartKindRecharge, ID: "r-1"},
		}, items)
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("clear drops index entries and the cart", func(t *testing.T) {
		rmock.ExpectSMembers("cart:user-1").SetVal([]string{"bill:b-1"})
		rmock.ExpectSRem("cart_members:bill:b-1", "user-1").SetVal(1)
		rmock.ExpectDel("cart:user-1").SetVal(1)

		require.NoError(t, service.Clear(ctx, "user-1"))
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("remove single item", func(t *testing.T) {
		rmock.ExpectSRem("cart:user-1", "bill:b-1").SetVal(1)
		rmock.ExpectSRem("cart_members:bill:b-1", "user-1").SetVal(1)

		require.NoError(t, service.Remove(ctx, "user-1", CartItem{Kind: CartKindBill, ID: "b-1"}))
		assert.NoError(t, rmock.ExpectationsWereMet())
	})
}

func TestCartService_RemoveEverywhere(t *testing.T) {
	rdb, rmock := redismock.NewClientMock()
	service := NewCartService(nil, rdb)

	rmock.ExpectSMembers("cart_members:bill:b-9").SetVal([]string{"user-1", "user-2"})
	rmock.ExpectSRem("cart:user-1", "bill:b-9").SetVal(1)
	rmock.ExpectSRem("cart:user-2", "bill:b-9").SetVal(1)
	rmock.ExpectDel("cart_members:bill:b-9").SetVal(1)

	n, err := service.RemoveEverywhere(context.Background(), CartItem{Kind: CartKindBill, ID: "b-9"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, rmock.ExpectationsWereMet())
}
