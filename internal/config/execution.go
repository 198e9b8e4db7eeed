package config

// EngineConfig configures how the pepsirf engine is invoked.
type EngineConfig struct {
	// Binary is the engine executable, a path or a name found on PATH.
	Binary string `yaml:"binary"`

	// ScratchDir is the parent of per-invocation scratch directories.
	// Empty means the OS temp dir.
	ScratchDir string `yaml:"scratch_dir"`

	// Environment variables to pass
	AllowedEnvVars []string `yaml:"allowed_env_vars"`

	// MaxCapturedOutput bounds the output tail kept for error messages.
	MaxCapturedOutput int64 `yaml:"max_captured_output"`
}

// PipelineConfig configures pipeline file execution.
type PipelineConfig struct {
	// Parallelism is the number of independent stages run at once.
	Parallelism int `yaml:"parallelism"`

	// OutfileDir holds default per-stage engine logs (<stage>.out).
	OutfileDir string `yaml:"outfile_dir"`
}
