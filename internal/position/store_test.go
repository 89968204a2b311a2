package position

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestKeyIsDeterministic(t *testing.T) {
	owner := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	series := [6]byte{0x30, 0x31, 0x30, 0x35, 0, 1}
	ilk := [6]byte{0x30, 0x31, 0, 0, 0, 0}

	got := Key(owner, series, ilk)
	want := "position:0xabcdef0000000000000000000000000000000001:0x303130350001:0x303100000000"
	if got != want {
		t.Fatalf("key mismatch: %s != %s", got, want)
	}
	if Key(owner, series, [6]byte{0x30, 0x32}) == got {
		t.Fatalf("different collateral must produce a different key")
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", "0x01"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "k", "0x02"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || value != "0x02" {
		t.Fatalf("last write should win: %q ok=%v err=%v", value, ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "positions.json")
	exerciseStore(t, NewFileStore(path))

	reopened := NewFileStore(path)
	value, ok, err := reopened.Get(context.Background(), "k")
	if err != nil || !ok || value != "0x02" {
		t.Fatalf("value should survive reopen: %q ok=%v err=%v", value, ok, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file should be renamed away")
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewFileStore(path).Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLevelDBStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "positions.ldb")
	s, err := NewLevelDBStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewLevelDBStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, ok, err := reopened.Get(context.Background(), "k")
	if err != nil || !ok || value != "0x02" {
		t.Fatalf("value should survive reopen: %q ok=%v err=%v", value, ok, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := Open(ctx, OpenConfig{Backend: BackendFile, Path: filepath.Join(t.TempDir(), "p.json")})
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Fatalf("expected file store, got %T", s)
	}
	_ = closeFn()

	if _, _, err := Open(ctx, OpenConfig{Backend: BackendFile}); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, _, err := Open(ctx, OpenConfig{Backend: "redis"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, _, err := Open(ctx, OpenConfig{Backend: BackendPostgres}); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}
