package configs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opst/modelflow/pkg/configs"
)

func TestUntilModifyContext(t *testing.T) {
	t.Run("when the watched file is written, it cancels context", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(file, []byte("database: a"), 0644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := configs.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := ctx.Err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := os.WriteFile(file, []byte("database: b"), 0644); err != nil {
			t.Fatal(err)
		}

		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); cause == nil || cause == context.Canceled {
				t.Errorf("cause should tell the modified file: %v", cause)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("context is not canceled")
		}
	})

	t.Run("when cancel is called, it cancels context", func(t *testing.T) {
		dir := t.TempDir()

		ctx, cancel, err := configs.UntilModifyContext(context.Background(), dir)
		if err != nil {
			t.Fatal(err)
		}
		cancel()

		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			t.Fatal("context is not canceled")
		}
	})

	t.Run("when the target does not exist, it returns error", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel, err := configs.UntilModifyContext(
			context.Background(), filepath.Join(dir, "missing"),
		)
		if err == nil {
			cancel()
			t.Fatal("expected error, but got nil")
		}
		if ctx != nil || cancel != nil {
			t.Error("context and cancel should be nil")
		}
	})
}
