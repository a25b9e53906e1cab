package domain

import (
	"context"
)

// TermCatalog looks up phenotype vocabulary terms
type TermCatalog interface {
	Search(ctx context.Context, query string) ([]VocabularyTerm, error)
	Get(id string) (VocabularyTerm, bool)
	Extract(text string) []VocabularyTerm
	Len() int
}

// DiagnosisRanker turns a patient's symptoms into ranked candidate diagnoses
type DiagnosisRanker interface {
	Rank(ctx context.Context, symptoms []PatientSymptom) ([]Diagnosis, error)
}

// SymptomSuggester proposes further symptoms worth asking about
type SymptomSuggester interface {
	Suggest(ctx context.Context, symptoms []PatientSymptom) ([]VocabularyTerm, error)
}

// UserRepository defines the interface for account persistence
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetExternalAPIConfig() *ExternalAPIConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
