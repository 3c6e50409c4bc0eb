package config

import "testing"

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Notebook: NotebookConfig{ID: "nb-1", ExportPath: "testdata/export.json"},
		Index: IndexConfig{
			Driver: "redis",
			Addrs:  []string{"localhost:6379"},
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Version:    "v1",
		},
		Chunking: ChunkingConfig{SizeTokens: 400, OverlapTokens: 50},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingNotebookID(t *testing.T) {
	cfg := validConfig()
	cfg.Notebook.ID = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing notebook id")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Driver = "pinecone"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown index driver")
	}

	expected := `index.driver must be "redis" or "qdrant", got "pinecone"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_RedisDriverNeedsAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_QdrantDriverNeedsURL(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Driver = "qdrant"
	cfg.Index.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing qdrant url")
	}

	cfg.Index.URL = "http://localhost:6333"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with qdrant url set: %v", err)
	}
}

func TestValidate_OverlapMustBeSmallerThanSize(t *testing.T) {
	cfg := validConfig()
	cfg.Chunking = ChunkingConfig{SizeTokens: 100, OverlapTokens: 100}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for overlap >= size")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Index.Driver != "redis" {
		t.Errorf("expected Driver='redis', got %q", cfg.Index.Driver)
	}
	if cfg.Index.Namespace != "default" {
		t.Errorf("expected Namespace='default', got %q", cfg.Index.Namespace)
	}
	if cfg.Index.KeyPrefix != "notedex:" {
		t.Errorf("expected KeyPrefix='notedex:', got %q", cfg.Index.KeyPrefix)
	}
	if cfg.Index.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.HNSWM)
	}
	if cfg.Index.HNSWEFConstruct != 400 {
		t.Errorf("expected HNSWEFConstruct=400, got %d", cfg.Index.HNSWEFConstruct)
	}
	if cfg.Embedding.MaxBatchSize != 256 {
		t.Errorf("expected MaxBatchSize=256, got %d", cfg.Embedding.MaxBatchSize)
	}
	if cfg.Embedding.Retry.MaxAttempts != 4 {
		t.Errorf("expected Retry.MaxAttempts=4, got %d", cfg.Embedding.Retry.MaxAttempts)
	}
	if cfg.Chunking.SizeTokens != 400 {
		t.Errorf("expected SizeTokens=400, got %d", cfg.Chunking.SizeTokens)
	}
	if cfg.Chunking.OverlapTokens != 50 {
		t.Errorf("expected OverlapTokens=50, got %d", cfg.Chunking.OverlapTokens)
	}
	if cfg.Sync.Parallelism != 4 {
		t.Errorf("expected Parallelism=4, got %d", cfg.Sync.Parallelism)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 120, ShutdownSec: 5},
		Index:    IndexConfig{Driver: "qdrant", Namespace: "notes", KeyPrefix: "custom:", HNSWM: 16},
		Chunking: ChunkingConfig{SizeTokens: 200, OverlapTokens: 25},
		Sync:     SyncConfig{Parallelism: 8},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Index.Driver != "qdrant" {
		t.Errorf("expected Driver='qdrant', got %q", cfg.Index.Driver)
	}
	if cfg.Index.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Index.KeyPrefix)
	}
	if cfg.Index.HNSWM != 16 {
		t.Errorf("expected HNSWM=16, got %d", cfg.Index.HNSWM)
	}
	if cfg.Chunking.OverlapTokens != 25 {
		t.Errorf("expected OverlapTokens=25, got %d", cfg.Chunking.OverlapTokens)
	}
	if cfg.Sync.Parallelism != 8 {
		t.Errorf("expected Parallelism=8, got %d", cfg.Sync.Parallelism)
	}
}
