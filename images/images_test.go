package images

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ggnet/ggnet-core/config"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

func newTestPipeline(t *testing.T) (*Pipeline, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.DatabaseDSN = filepath.Join(cfg.RootDir, "ggnet.sqlite3")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return New(cfg, st), cfg
}

func TestUploadRAWPromotesDirectlyToReady(t *testing.T) {
	ctx := context.Background()
	p, cfg := newTestPipeline(t)

	payload := []byte("hello-raw-disk-image")
	token, err := p.BeginUpload(ctx, "win11-base", types.ImageFormatRAW, int64(len(payload)), "operator")
	if err != nil {
		t.Fatalf("begin_upload: %v", err)
	}

	if err := p.AppendChunk(ctx, token, 0, payload); err != nil {
		t.Fatalf("append_chunk: %v", err)
	}

	if err := p.FinalizeUpload(ctx, token, nil); err != nil {
		t.Fatalf("finalize_upload: %v", err)
	}

	img, err := p.st.GetImage(ctx, token)
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	if img.Status != types.ImageStatusReady {
		t.Fatalf("expected READY, got %s", img.Status)
	}
	if img.Checksum == "" {
		t.Fatal("expected checksum to be set")
	}
	if img.FilePath != cfg.ImagePath(token) {
		t.Fatalf("expected promoted path %s, got %s", cfg.ImagePath(token), img.FilePath)
	}
	if _, err := os.Stat(img.FilePath); err != nil {
		t.Fatalf("promoted file missing: %v", err)
	}
}

func TestAppendChunkRejectsOutOfOrderOffset(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	token, err := p.BeginUpload(ctx, "win11-base", types.ImageFormatRAW, 10, "operator")
	if err != nil {
		t.Fatalf("begin_upload: %v", err)
	}

	if err := p.AppendChunk(ctx, token, 5, []byte("hello")); err == nil {
		t.Fatal("expected ProtocolError for non-zero first offset")
	}
}

func TestFinalizeUploadRejectsSizeMismatch(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	token, err := p.BeginUpload(ctx, "win11-base", types.ImageFormatRAW, 100, "operator")
	if err != nil {
		t.Fatalf("begin_upload: %v", err)
	}
	if err := p.AppendChunk(ctx, token, 0, []byte("short")); err != nil {
		t.Fatalf("append_chunk: %v", err)
	}

	if err := p.FinalizeUpload(ctx, token, nil); err == nil {
		t.Fatal("expected size mismatch to fail finalize_upload")
	}
}

func TestNonRAWUploadQueuesConversion(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	payload := []byte("fake-qcow2-bytes")
	token, err := p.BeginUpload(ctx, "linux-base", types.ImageFormatQCOW2, int64(len(payload)), "operator")
	if err != nil {
		t.Fatalf("begin_upload: %v", err)
	}
	if err := p.AppendChunk(ctx, token, 0, payload); err != nil {
		t.Fatalf("append_chunk: %v", err)
	}
	if err := p.FinalizeUpload(ctx, token, nil); err != nil {
		t.Fatalf("finalize_upload: %v", err)
	}

	img, err := p.st.GetImage(ctx, token)
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	if img.Status != types.ImageStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", img.Status)
	}

	job, err := p.st.GetConversionJobByImage(ctx, token)
	if err != nil {
		t.Fatalf("get conversion job: %v", err)
	}
	if job.Status != types.ConversionJobPending {
		t.Fatalf("expected PENDING job, got %s", job.Status)
	}
}
