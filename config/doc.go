// Package config loads the YAML configuration of the resilience core.
//
// Parse starts from Default, so a file only needs the keys it changes.
// ${VAR} references are expanded before decoding and an unset variable is
// an error; write $$ for a literal dollar sign. Unknown keys are rejected.
//
//	service:
//	  name: assistant
//	breaker:
//	  failure_threshold: 3
//	  reset_timeout: 30s
//	memory:
//	  threshold_mb: ${MEMORY_THRESHOLD_MB}
//	  sampler: procfs
package config
