package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// hashStoreFactory returns a fresh store and a function that moves the
// store's clock forward.
type hashStoreFactory func(t *testing.T) (HashStore, func(time.Duration))

// runHashStoreContract exercises the behaviour every HashStore must share.
func runHashStoreContract(t *testing.T, newStore hashStoreFactory) {
	ctx := context.Background()

	t.Run("HGetMissing", func(t *testing.T) {
		hs, _ := newStore(t)

		_, err := hs.HGet(ctx, "bucket", "1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for absent bucket, got %v", err)
		}

		if err := hs.HSet(ctx, "bucket", "1", []byte("one")); err != nil {
			t.Fatalf("HSet failed: %v", err)
		}
		_, err = hs.HGet(ctx, "bucket", "2")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for absent field, got %v", err)
		}
	})

	t.Run("HSetOverwrites", func(t *testing.T) {
		hs, _ := newStore(t)

		_ = hs.HSet(ctx, "bucket", "1", []byte("first"))
		_ = hs.HSet(ctx, "bucket", "1", []byte("second"))

		val, err := hs.HGet(ctx, "bucket", "1")
		if err != nil {
			t.Fatalf("HGet failed: %v", err)
		}
		if string(val) != "second" {
			t.Errorf("expected second, got %q", val)
		}

		all, _ := hs.HGetAll(ctx, "bucket")
		if len(all) != 1 {
			t.Errorf("expected 1 field, got %d", len(all))
		}
	})

	t.Run("HSetAllAndHGetAll", func(t *testing.T) {
		hs, _ := newStore(t)

		fields := map[string][]byte{"1": []byte("a"), "2": []byte("b"), "3": []byte("c")}
		if err := hs.HSetAll(ctx, "bucket", fields, time.Minute); err != nil {
			t.Fatalf("HSetAll failed: %v", err)
		}

		all, err := hs.HGetAll(ctx, "bucket")
		if err != nil {
			t.Fatalf("HGetAll failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 fields, got %d", len(all))
		}
		for k, v := range fields {
			if string(all[k]) != string(v) {
				t.Errorf("field %s: expected %q, got %q", k, v, all[k])
			}
		}
	})

	t.Run("HReplaceDropsOldFields", func(t *testing.T) {
		hs, advance := newStore(t)

		_ = hs.HSet(ctx, "bucket", "1", []byte("old"))
		_ = hs.HSet(ctx, "bucket", "99", []byte("gone"))

		fields := map[string][]byte{"1": []byte("a"), "2": []byte("b")}
		if err := hs.HReplace(ctx, "bucket", fields, time.Minute); err != nil {
			t.Fatalf("HReplace failed: %v", err)
		}

		all, err := hs.HGetAll(ctx, "bucket")
		if err != nil {
			t.Fatalf("HGetAll failed: %v", err)
		}
		if len(all) != 2 || string(all["1"]) != "a" || string(all["2"]) != "b" {
			t.Errorf("expected exactly the replacement fields, got %v", all)
		}
		if _, err := hs.HGet(ctx, "bucket", "99"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected field 99 to be dropped, got %v", err)
		}

		advance(time.Minute + time.Second)
		all, _ = hs.HGetAll(ctx, "bucket")
		if len(all) != 0 {
			t.Errorf("expected replaced bucket to expire, got %d fields", len(all))
		}
	})

	t.Run("HReplaceRejectsEmpty", func(t *testing.T) {
		hs, _ := newStore(t)

		_ = hs.HSet(ctx, "bucket", "1", []byte("keep"))
		if err := hs.HReplace(ctx, "bucket", map[string][]byte{}, time.Minute); err == nil {
			t.Fatal("expected error for empty HReplace")
		}
		if _, err := hs.HGet(ctx, "bucket", "1"); err != nil {
			t.Errorf("rejected HReplace must leave the bucket alone: %v", err)
		}
	})

	t.Run("HSetAllRejectsEmpty", func(t *testing.T) {
		hs, _ := newStore(t)

		if err := hs.HSetAll(ctx, "bucket", map[string][]byte{}, time.Minute); err == nil {
			t.Error("expected error for empty HSetAll")
		}
	})

	t.Run("HGetAllAbsentIsEmpty", func(t *testing.T) {
		hs, _ := newStore(t)

		all, err := hs.HGetAll(ctx, "nothing-here")
		if err != nil {
			t.Fatalf("HGetAll failed: %v", err)
		}
		if len(all) != 0 {
			t.Errorf("expected empty map, got %d fields", len(all))
		}
	})

	t.Run("BucketExpiresAsAWhole", func(t *testing.T) {
		hs, advance := newStore(t)

		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"1": []byte("a"), "2": []byte("b")}, 10*time.Second)

		advance(5 * time.Second)
		if all, _ := hs.HGetAll(ctx, "bucket"); len(all) != 2 {
			t.Fatalf("expected bucket alive after 5s, got %d fields", len(all))
		}

		advance(6 * time.Second)
		if all, _ := hs.HGetAll(ctx, "bucket"); len(all) != 0 {
			t.Errorf("expected bucket expired after 11s, got %d fields", len(all))
		}
		if _, err := hs.HGet(ctx, "bucket", "1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after expiry, got %v", err)
		}
	})

	t.Run("HSetKeepsExpiry", func(t *testing.T) {
		hs, advance := newStore(t)

		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"1": []byte("a")}, 10*time.Second)
		advance(8 * time.Second)

		// a plain write must not push the expiry back
		_ = hs.HSet(ctx, "bucket", "2", []byte("b"))
		advance(3 * time.Second)

		if all, _ := hs.HGetAll(ctx, "bucket"); len(all) != 0 {
			t.Errorf("expected bucket to expire on the original schedule, got %d fields", len(all))
		}
	})

	t.Run("HSetAllRearmsExpiry", func(t *testing.T) {
		hs, advance := newStore(t)

		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"1": []byte("a")}, 10*time.Second)
		advance(8 * time.Second)
		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"2": []byte("b")}, 10*time.Second)
		advance(8 * time.Second)

		all, _ := hs.HGetAll(ctx, "bucket")
		if len(all) != 2 {
			t.Errorf("expected both fields alive under the re-armed TTL, got %d", len(all))
		}
	})

	t.Run("HDel", func(t *testing.T) {
		hs, _ := newStore(t)

		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"1": []byte("a"), "2": []byte("b")}, time.Minute)

		if err := hs.HDel(ctx, "bucket", "1"); err != nil {
			t.Fatalf("HDel failed: %v", err)
		}
		if _, err := hs.HGet(ctx, "bucket", "1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected deleted field to be gone, got %v", err)
		}
		if val, err := hs.HGet(ctx, "bucket", "2"); err != nil || string(val) != "b" {
			t.Errorf("expected other field untouched, got %q, %v", val, err)
		}

		// deleting absent fields and buckets is not an error
		if err := hs.HDel(ctx, "bucket", "99"); err != nil {
			t.Errorf("HDel of absent field returned error: %v", err)
		}
		if err := hs.HDel(ctx, "other", "1"); err != nil {
			t.Errorf("HDel on absent bucket returned error: %v", err)
		}
	})

	t.Run("HDelLastFieldRemovesBucket", func(t *testing.T) {
		hs, _ := newStore(t)

		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"1": []byte("a")}, time.Minute)
		_ = hs.HDel(ctx, "bucket", "1")

		if all, _ := hs.HGetAll(ctx, "bucket"); len(all) != 0 {
			t.Errorf("expected empty bucket, got %d fields", len(all))
		}
	})

	t.Run("ExpireAbsentIsNoop", func(t *testing.T) {
		hs, _ := newStore(t)

		if err := hs.Expire(ctx, "ghost", time.Minute); err != nil {
			t.Errorf("Expire on absent bucket returned error: %v", err)
		}
		if all, _ := hs.HGetAll(ctx, "ghost"); len(all) != 0 {
			t.Error("Expire must not create a bucket")
		}
	})

	t.Run("ExpireArmsPlainBucket", func(t *testing.T) {
		hs, advance := newStore(t)

		_ = hs.HSet(ctx, "bucket", "1", []byte("a"))
		if err := hs.Expire(ctx, "bucket", 2*time.Second); err != nil {
			t.Fatalf("Expire failed: %v", err)
		}
		advance(3 * time.Second)

		if all, _ := hs.HGetAll(ctx, "bucket"); len(all) != 0 {
			t.Errorf("expected bucket expired, got %d fields", len(all))
		}
	})

	t.Run("Del", func(t *testing.T) {
		hs, _ := newStore(t)

		_ = hs.HSetAll(ctx, "bucket", map[string][]byte{"1": []byte("a")}, time.Minute)
		_ = hs.HSet(ctx, "other", "1", []byte("z"))

		if err := hs.Del(ctx, "bucket"); err != nil {
			t.Fatalf("Del failed: %v", err)
		}
		if all, _ := hs.HGetAll(ctx, "bucket"); len(all) != 0 {
			t.Error("expected bucket gone after Del")
		}
		if _, err := hs.HGet(ctx, "other", "1"); err != nil {
			t.Errorf("Del touched another bucket: %v", err)
		}
	})
}
