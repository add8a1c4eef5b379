package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dedupe/internal/blocking"
	"dedupe/internal/domain"
	"dedupe/internal/filter"
	"dedupe/internal/records"
)

// Store, labeler and id types accepted in the config.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	LabelerConsole = "console"
	LabelerTUI     = "tui"
	LabelerReplay  = "replay"
)

// IDConfig names the identifier column(s) and how to parse them.
type IDConfig struct {
	Fields []string `yaml:"fields"`
	Type   string   `yaml:"type"`
}

// DatasetConfig describes the input table and the fields compared.
type DatasetConfig struct {
	Name   string             `yaml:"name"`
	Input  string             `yaml:"input"`
	ID     IDConfig           `yaml:"id"`
	Fields []domain.FieldSpec `yaml:"fields"`
}

// BlockingConfig configures how candidate pairs are generated.
type BlockingConfig struct {
	Predicates   []string `yaml:"predicates,omitempty"`
	MaxBlockSize int      `yaml:"max_block_size"`
}

// TrainingConfig configures the labeling session and the judgment store.
type TrainingConfig struct {
	Store      string  `yaml:"store"`
	Path       string  `yaml:"path"`
	Labeler    string  `yaml:"labeler"`
	ReplayFile string  `yaml:"replay_file,omitempty"`
	SampleSize int     `yaml:"sample_size"`
	L2         float64 `yaml:"l2"`
	MaxQueries int     `yaml:"max_queries"`
}

// ClusterConfig configures the partition.
type ClusterConfig struct {
	Threshold float64 `yaml:"threshold"`
	PairFloor float64 `yaml:"pair_floor"`
}

// OutputConfig configures the clustered table and its summary.
type OutputConfig struct {
	Path        string `yaml:"path"`
	Summary     bool   `yaml:"summary"`
	SumColumn   string `yaml:"sum_column,omitempty"`
	DateColumn  string `yaml:"date_column,omitempty"`
	ShareColumn string `yaml:"share_column,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Dataset       DatasetConfig             `yaml:"dataset"`
	Filters       map[string]filter.Profile `yaml:"filters,omitempty"`
	FilterProfile string                    `yaml:"filter_profile,omitempty"`
	Blocking      BlockingConfig            `yaml:"blocking"`
	Training      TrainingConfig            `yaml:"training"`
	Cluster       ClusterConfig             `yaml:"cluster"`
	Output        OutputConfig              `yaml:"output"`
	Logging       LoggingConfig             `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and fills in defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./dedupe.yaml first, then ~/.config/dedupe/config.yaml.
// If neither exists, it returns defaults.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "dedupe.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return defaultConfig(), "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from the environment:
//   - DEDUPE_INPUT: input table path
//   - DEDUPE_THRESHOLD: cluster threshold in (0,1)
//   - DEDUPE_TRAINING_PATH: training file or database path
//   - DEDUPE_LABELER: console, tui or replay
//   - DEDUPE_MAX_QUERIES: labeling session limit
//   - DEDUPE_LOG_LEVEL: log level
func (c *AppConfig) ApplyEnv() error {
	parseEnvString("DEDUPE_INPUT", &c.Dataset.Input)
	if err := parseEnvFloat("DEDUPE_THRESHOLD", &c.Cluster.Threshold); err != nil {
		return err
	}
	parseEnvString("DEDUPE_TRAINING_PATH", &c.Training.Path)
	parseEnvString("DEDUPE_LABELER", &c.Training.Labeler)
	if err := parseEnvInt("DEDUPE_MAX_QUERIES", &c.Training.MaxQueries); err != nil {
		return err
	}
	parseEnvString("DEDUPE_LOG_LEVEL", &c.Logging.Level)
	return nil
}

// Validate checks if the configuration has valid values.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Dataset.Input) == "" {
		return fmt.Errorf("dataset.input is required")
	}
	if len(c.Dataset.ID.Fields) == 0 {
		return fmt.Errorf("dataset.id.fields is required")
	}
	switch records.IDType(c.Dataset.ID.Type) {
	case records.IDInt, records.IDString:
	default:
		return fmt.Errorf("dataset.id.type must be %q or %q (got %q)", records.IDInt, records.IDString, c.Dataset.ID.Type)
	}
	if len(c.Dataset.Fields) == 0 {
		return fmt.Errorf("dataset.fields must declare at least one comparison field")
	}
	for i, f := range c.Dataset.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("dataset.fields[%d]: field name is required", i)
		}
		if f.Type != domain.FieldString && f.Type != domain.FieldText {
			return fmt.Errorf("dataset.fields[%d] (%s): type must be %q or %q (got %q)", i, f.Name, domain.FieldString, domain.FieldText, f.Type)
		}
	}
	if c.FilterProfile != "" {
		profile, ok := c.Filters[c.FilterProfile]
		if !ok {
			return fmt.Errorf("filter_profile %q is not defined under filters", c.FilterProfile)
		}
		if err := filter.Validate(profile.Rules); err != nil {
			return fmt.Errorf("filters.%s: %w", c.FilterProfile, err)
		}
	}
	for _, p := range c.Blocking.Predicates {
		switch blocking.Predicate(p) {
		case blocking.Exact, blocking.FirstToken, blocking.Tokens, blocking.Prefix:
		default:
			return fmt.Errorf("blocking.predicates: unknown predicate %q", p)
		}
	}
	if c.Blocking.MaxBlockSize < 0 {
		return fmt.Errorf("blocking.max_block_size cannot be negative (got %d)", c.Blocking.MaxBlockSize)
	}
	switch c.Training.Store {
	case StoreJSON, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("training.store must be json, sqlite or memory (got %q)", c.Training.Store)
	}
	if c.Training.Store != StoreMemory && strings.TrimSpace(c.Training.Path) == "" {
		return fmt.Errorf("training.path is required for the %s store", c.Training.Store)
	}
	switch c.Training.Labeler {
	case LabelerConsole, LabelerTUI:
	case LabelerReplay:
		if c.Training.ReplayFile == "" {
			return fmt.Errorf("training.replay_file is required for the replay labeler")
		}
	default:
		return fmt.Errorf("training.labeler must be console, tui or replay (got %q)", c.Training.Labeler)
	}
	if c.Training.SampleSize <= 0 {
		return fmt.Errorf("training.sample_size must be positive (got %d)", c.Training.SampleSize)
	}
	if c.Training.L2 < 0 {
		return fmt.Errorf("training.l2 cannot be negative (got %.3f)", c.Training.L2)
	}
	if c.Training.MaxQueries < 0 {
		return fmt.Errorf("training.max_queries cannot be negative (got %d)", c.Training.MaxQueries)
	}
	if !(c.Cluster.Threshold > 0 && c.Cluster.Threshold < 1) {
		return &domain.InvalidThresholdError{Threshold: c.Cluster.Threshold}
	}
	if c.Cluster.PairFloor <= 0 || c.Cluster.PairFloor >= 1 {
		return fmt.Errorf("cluster.pair_floor must be between 0.0 and 1.0 exclusive (got %.3f)", c.Cluster.PairFloor)
	}
	return nil
}

// IDSpec returns the record identifier declaration.
func (c *AppConfig) IDSpec() records.IDSpec {
	return records.IDSpec{Fields: c.Dataset.ID.Fields, Type: records.IDType(c.Dataset.ID.Type)}
}

// FilterRules returns the rules of the selected filter profile.
func (c *AppConfig) FilterRules() []filter.Rule {
	if c.FilterProfile == "" {
		return nil
	}
	return c.Filters[c.FilterProfile].Rules
}

// FieldNames returns the comparison field names.
func (c *AppConfig) FieldNames() []string {
	names := make([]string, len(c.Dataset.Fields))
	for i, f := range c.Dataset.Fields {
		names[i] = f.Name
	}
	return names
}

// OutputPath returns the clustered table path, derived from the input when unset.
func (c *AppConfig) OutputPath() string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	ext := filepath.Ext(c.Dataset.Input)
	return strings.TrimSuffix(c.Dataset.Input, ext) + "_clusters" + orDefault(ext, ".csv")
}

// FilteredPath returns where the filtered table is written.
func (c *AppConfig) FilteredPath() string {
	ext := filepath.Ext(c.Dataset.Input)
	return strings.TrimSuffix(c.Dataset.Input, ext) + "_filtered" + orDefault(ext, ".csv")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dedupe", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Dataset:  DatasetConfig{Name: "dataset", ID: IDConfig{Fields: []string{"id"}, Type: string(records.IDInt)}},
		Blocking: BlockingConfig{MaxBlockSize: 500},
		Training: TrainingConfig{Store: StoreJSON, Labeler: LabelerConsole, SampleSize: 15000, L2: 0.1},
		Cluster:  ClusterConfig{Threshold: 0.5, PairFloor: 0.05},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Dataset.Name == "" {
		cfg.Dataset.Name = "dataset"
	}
	if len(cfg.Dataset.ID.Fields) == 0 {
		cfg.Dataset.ID.Fields = []string{"id"}
	}
	if cfg.Dataset.ID.Type == "" {
		cfg.Dataset.ID.Type = string(records.IDInt)
	}
	for i := range cfg.Dataset.Fields {
		if cfg.Dataset.Fields[i].Type == "" {
			cfg.Dataset.Fields[i].Type = domain.FieldString
		}
	}
	if cfg.Blocking.MaxBlockSize == 0 {
		cfg.Blocking.MaxBlockSize = 500
	}
	if cfg.Training.Store == "" {
		cfg.Training.Store = StoreJSON
	}
	if cfg.Training.Path == "" {
		ext := ".json"
		if cfg.Training.Store == StoreSQLite {
			ext = ".db"
		}
		cfg.Training.Path = filepath.Join("Dedupe_Training", cfg.Dataset.Name+ext)
	}
	if cfg.Training.Labeler == "" {
		cfg.Training.Labeler = LabelerConsole
	}
	if cfg.Training.SampleSize == 0 {
		cfg.Training.SampleSize = 15000
	}
	if cfg.Training.L2 == 0 {
		cfg.Training.L2 = 0.1
	}
	if cfg.Cluster.Threshold == 0 {
		cfg.Cluster.Threshold = 0.5
	}
	if cfg.Cluster.PairFloor == 0 {
		cfg.Cluster.PairFloor = 0.05
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseEnvString copies a non-empty environment variable into dest.
func parseEnvString(key string, dest *string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dest = value
	}
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
