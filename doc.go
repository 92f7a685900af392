// Package zenith provides a BigQuery ML workflow toolkit: it trains
// linear-regression models with BQML, inspects training runs, evaluates and
// predicts through ML.* table functions, and extracts sharded CSV training
// datasets from BigQuery into Cloud Storage for downstream TensorFlow work.
//
// # Architecture
//
// Zenith is organized around three layers:
//
// 1. BQML orchestration (pkg/bqml): renders CREATE MODEL / ML.TRAINING_INFO /
// ML.EVALUATE / ML.PREDICT statements from validated model specifications and
// runs them through the BigQuery client.
//
// 2. Dataset definitions (pkg/dataset): the natality and taxifare datasets,
// each with a source query, a deterministic hash-based train/eval split, and
// a pure row-to-CSV transform.
//
// 3. Export pipeline (internal/pipeline + pkg/connector): a streaming
// read -> transform -> write engine that moves query results from a BigQuery
// source into sharded CSV files on Cloud Storage or local disk.
//
// # Quick Start
//
// Train a fare-prediction model and export its training data:
//
//	zenith train --data taxifare --model taxifare_model
//	zenith evaluate --data taxifare --model taxifare_model
//	zenith export --data taxifare --bucket my-bucket --prefix taxi
//
// # Key Packages
//
//	pkg/bqml          - BQML statement rendering and job orchestration
//	pkg/dataset       - dataset specs, splits, row-to-CSV transforms
//	pkg/connector     - source/destination connector framework
//	internal/pipeline - streaming pipeline engine
//	pkg/mlengine      - AI Platform training job submission
//	pkg/evaluate      - client-side regression metrics
//	pkg/config        - unified configuration
//	pkg/errors        - structured error handling
//	pkg/logger        - structured logging
package zenith
