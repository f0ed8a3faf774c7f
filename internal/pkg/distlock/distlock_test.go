package distlock

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "campaign:launch:1", time.Minute)
	b := NewRedisLock(rdb, "campaign:launch:1", time.Minute)

	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = b.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("two holders of the same lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatal(err)
	}

	ok, err = b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLock_ReleaseRespectsOwnership(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "campaign:launch:2", time.Minute)
	b := NewRedisLock(rdb, "campaign:launch:2", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// b never acquired; releasing must not free a's lock.
	if err := b.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Error("release by a non-owner freed the lock")
	}
}

func TestRedisLock_DistinctKeysAreIndependent(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "campaign:launch:1", time.Minute)
	b := NewRedisLock(rdb, "campaign:launch:2", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire a failed")
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Error("unrelated key blocked")
	}
}

func TestAdvisoryLock_Acquire(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewAdvisoryLock(db, "campaign:launch:1")
	ok, err := l.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if err := l.Release(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAdvisoryLock_DeterministicID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	a := NewAdvisoryLock(db, "campaign:launch:1")
	b := NewAdvisoryLock(db, "campaign:launch:1")
	c := NewAdvisoryLock(db, "campaign:launch:2")

	if a.lockID != b.lockID {
		t.Error("same key hashed to different lock IDs")
	}
	if a.lockID == c.lockID {
		t.Error("distinct keys collided")
	}
}

func TestNew_BackendSelection(t *testing.T) {
	rdb := redisClient(t)
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, ok := New(rdb, db, "k", time.Minute).(*RedisLock); !ok {
		t.Error("redis client present, expected RedisLock")
	}
	if _, ok := New(nil, db, "k", time.Minute).(*AdvisoryLock); !ok {
		t.Error("db present, expected AdvisoryLock")
	}

	l := New(nil, nil, "k", time.Minute)
	if ok, err := l.Acquire(context.Background()); err != nil || !ok {
		t.Errorf("noop lock must always acquire: ok=%v err=%v", ok, err)
	}
}
