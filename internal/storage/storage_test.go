package storage

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestListingIDDeterministicAndDistinct(t *testing.T) {
	a1 := ListingID("https://acme.test/item/42")
	a2 := ListingID("https://acme.test/item/42")
	b := ListingID("https://acme.test/item/43")

	if a1 != a2 {
		t.Fatalf("ListingID not deterministic: %q vs %q", a1, a2)
	}
	if a1 == b {
		t.Fatalf("ListingID should differ for different keys: %q", a1)
	}
	if len(a1) != 40 {
		t.Fatalf("ListingID length = %d, want 40 (fits the primary key column)", len(a1))
	}
}

func TestSeenCacheKeyUsesHash(t *testing.T) {
	key := "https://acme.test/item/42?ref=a b"
	got := seenCacheKey(key)
	if !strings.HasPrefix(got, "listing:seen:") {
		t.Fatalf("unexpected cache key prefix: %q", got)
	}
	if strings.ContainsAny(got, " ?") {
		t.Fatalf("cache key should not contain the raw listing key: %q", got)
	}
}

// newTestStore 用 sqlmock 顶替 postgres 连接，用 miniredis 顶替缓存
func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		_ = rdb.Close()
		_ = sqlDB.Close()
	})
	return &Store{DB: db, Redis: rdb}, mock, mr
}

const (
	insertListingSQL = `INSERT INTO "seen_listings" (.+) ON CONFLICT DO NOTHING`
	selectListingSQL = `SELECT \* FROM "seen_listings" WHERE listing_key = \$1`
	deleteListingSQL = `DELETE FROM "seen_listings" WHERE listing_key = \$1`
)

func TestInsertIfAbsentReportsConflictAsAlreadyExists(t *testing.T) {
	s, mock, mr := newTestStore(t)
	ctx := context.Background()
	key := "https://acme.test/item/42"

	mock.ExpectExec(insertListingSQL).
		WithArgs(ListingID(key), key, "Acme", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 唯一约束冲突时 ON CONFLICT DO NOTHING 影响 0 行
	mock.ExpectExec(insertListingSQL).
		WithArgs(ListingID(key), key, "Acme", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := s.InsertIfAbsent(ctx, key, "Acme", time.Now())
	if err != nil || got != Inserted {
		t.Fatalf("first insert = %v, %v; want Inserted", got, err)
	}
	got, err = s.InsertIfAbsent(ctx, key, "Acme", time.Now())
	if err != nil || got != AlreadyExists {
		t.Fatalf("second insert = %v, %v; want AlreadyExists", got, err)
	}

	if !mr.Exists(seenCacheKey(key)) {
		t.Fatalf("inserted key should be cached")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestInsertIfAbsentReturnsStorageError(t *testing.T) {
	s, mock, mr := newTestStore(t)
	key := "https://acme.test/item/42"

	mock.ExpectExec(insertListingSQL).WillReturnError(errors.New("connection reset"))

	got, err := s.InsertIfAbsent(context.Background(), key, "Acme", time.Now())
	if err == nil || got != 0 {
		t.Fatalf("expected error and zero result, got %v, %v", got, err)
	}
	if mr.Exists(seenCacheKey(key)) {
		t.Fatalf("failed insert must not be cached")
	}
}

func TestHasListing(t *testing.T) {
	s, mock, mr := newTestStore(t)
	ctx := context.Background()
	key := "https://acme.test/item/42"
	cols := []string{"id", "listing_key", "vendor", "first_seen_at"}

	mock.ExpectQuery(selectListingSQL).WillReturnRows(sqlmock.NewRows(cols))
	found, err := s.HasListing(ctx, key)
	if err != nil || found {
		t.Fatalf("missing row: got %v, %v; want false, nil", found, err)
	}

	mock.ExpectQuery(selectListingSQL).WillReturnError(errors.New("db down"))
	if found, err := s.HasListing(ctx, key); err == nil || found {
		t.Fatalf("lookup failure must surface as error, got %v, %v", found, err)
	}

	mock.ExpectQuery(selectListingSQL).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(ListingID(key), key, "Acme", time.Now()))
	if found, err := s.HasListing(ctx, key); err != nil || !found {
		t.Fatalf("existing row: got %v, %v; want true, nil", found, err)
	}
	if !mr.Exists(seenCacheKey(key)) {
		t.Fatalf("found key should be cached")
	}

	// 命中缓存时不再查库
	if found, err := s.HasListing(ctx, key); err != nil || !found {
		t.Fatalf("cached key: got %v, %v; want true, nil", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDeleteListingInvalidatesCache(t *testing.T) {
	s, mock, mr := newTestStore(t)
	ctx := context.Background()
	key := "https://acme.test/item/42"

	if err := mr.Set(seenCacheKey(key), "1"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	mock.ExpectExec(deleteListingSQL).WithArgs(key).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteListingSQL).WithArgs(key).WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := s.DeleteListing(ctx, key)
	if err != nil || n != 1 {
		t.Fatalf("first delete = %d, %v; want 1", n, err)
	}
	if mr.Exists(seenCacheKey(key)) {
		t.Fatalf("cache entry should be removed on delete")
	}

	n, err = s.DeleteListing(ctx, key)
	if err != nil || n != 0 {
		t.Fatalf("second delete = %d, %v; want 0", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestListVendorsReturnsActiveVendors(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vendors" WHERE status = $1 ORDER BY name ASC`)).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "base_url", "status", "meta"}).
			AddRow(1, "Acme", "https://acme.test/new", "active", []byte(`{"input":"json"}`)))

	list, err := s.ListVendors(context.Background())
	if err != nil {
		t.Fatalf("ListVendors error: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Acme" || list[0].Meta["input"] != "json" {
		t.Fatalf("unexpected vendors: %+v", list)
	}
}
