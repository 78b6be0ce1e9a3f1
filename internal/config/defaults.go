package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./data/uploads"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "./data/indexes"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/codelens.db"
	}
	if cfg.Indexing.ChunkSize == 0 {
		cfg.Indexing.ChunkSize = 60
	}
	if cfg.Indexing.ChunkOverlap == 0 {
		cfg.Indexing.ChunkOverlap = 10
	}
	if cfg.Indexing.MaxFileKB == 0 {
		cfg.Indexing.MaxFileKB = 300
	}
	if cfg.Indexing.MaxZipMB == 0 {
		cfg.Indexing.MaxZipMB = 50
	}
	if cfg.Indexing.MaxConcurrent == 0 {
		cfg.Indexing.MaxConcurrent = 3
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "gemini-embedding-001"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 3072
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 20
	}
	if cfg.Embedding.BatchPauseMs == 0 {
		cfg.Embedding.BatchPauseMs = 300
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "gemini-2.5-flash"
	}
	if cfg.Answer.TopK == 0 {
		cfg.Answer.TopK = 8
	}
	if cfg.Answer.Temperature == 0 {
		cfg.Answer.Temperature = 0.2
	}
	if cfg.Answer.MaxOutputTokens == 0 {
		cfg.Answer.MaxOutputTokens = 1500
	}
	if cfg.Answer.RefactorTemperature == 0 {
		cfg.Answer.RefactorTemperature = 0.3
	}
	if cfg.Answer.RefactorMaxTokens == 0 {
		cfg.Answer.RefactorMaxTokens = 800
	}
	if cfg.Answer.HistoryLimit == 0 {
		cfg.Answer.HistoryLimit = 10
	}
	if cfg.Answer.MaxQuestionChars == 0 {
		cfg.Answer.MaxQuestionChars = 2000
	}
}
