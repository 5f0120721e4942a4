// Package config loads and validates the runtime configuration of the
// constitution engine and its host process.
//
// # Loading
//
// Configuration is read from a YAML file on top of built-in defaults, then
// environment overrides are applied and the result is validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("constitution.yaml")
//
// An empty path skips the file and yields defaults plus overrides.
//
// # Environment Variable Overrides
//
// Variables follow CONSTITUTION_SECTION_FIELD, for example:
//
//   - CONSTITUTION_ENGINE_FAIL_MODE overrides engine.fail_mode
//   - CONSTITUTION_DOCUMENT_PATH overrides document.path
//   - CONSTITUTION_LOGGING_LEVEL overrides logging.level
//   - CONSTITUTION_EVIDENCE_SQLITE_PATH overrides evidence.sqlite.path
//
// Unparseable values are reported as validation errors rather than ignored.
package config
