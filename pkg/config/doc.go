// Package config provides CUE-based application configuration for
// ChangeGuard.
//
// The configuration file is written in CUE and validated against a closed
// schema with defaults, so an empty file is a valid configuration and
// every omitted field gets its documented default.
//
// # Usage Example
//
//	parser := config.NewParser()
//	cfg, err := parser.LoadFile("changeguard.cue")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration Structure
//
//	rules: {
//	    paths: ["./policies"]
//	    builtin: true
//	}
//
//	evaluation: {
//	    workers: 4
//	}
//
//	history: {
//	    enabled: true
//	    path:    "/var/lib/changeguard/history.db"
//	    keep:    100
//	}
//
//	telemetry: {
//	    log_level:  "info"
//	    log_format: "json"
//	    metrics: {
//	        enabled:        true
//	        listen_address: ":9090"
//	    }
//	}
//
// # Error Handling
//
// Parse and validation errors carry the file position:
//
//	ValidationError{
//	    File:    "changeguard.cue",
//	    Line:    4,
//	    Column:  12,
//	    Message: "evaluation.workers: invalid value 0 (out of bound >=1)",
//	}
package config
