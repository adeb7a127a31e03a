// Package config provides the configuration of avrostream runs.
//
// The configuration is organized into logical sections:
//   - Logging: level, encoding and output paths of the zap logger
//   - Reader: container read mode, window sizes and workers
//   - Storage: object storage clients and output compression
//   - Export: output format, delimiter and ocf codec
//   - Kafka: producer settings of the kafka export
//   - Observability: metrics textfile and tracing
//
// # File Format
//
// Files are YAML. ${VAR_NAME} references are replaced with environment
// values before parsing, and keys absent from the file keep their defaults:
//
//	schema: schemas/event.avsc
//	where: status >= 500 AND NOT path PREFIX "/health"
//	reader:
//	  mode: reduced
//	storage:
//	  region: eu-west-1
//	  endpoint: ${S3_ENDPOINT}
//	kafka:
//	  brokers: ["${KAFKA_BROKER}"]
//	  topic: events
//	  key_field: user_id
//
// # Usage
//
//	cfg, err := config.LoadFile("avrostream.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The CLI binds its flags and AVROSTREAM_* environment variables on top of
// the loaded file.
package config
