// Package medimg streams image batches and multi-label targets from a chest
// X-ray style dataset index into a training loop, and computes per-class
// weights that correct label imbalance.
//
// medimg is built for training drivers written in Go: data loading stays in
// one process with plain interfaces, typed errors and structured logs.
//
// # Features
//
// - Deterministic batch iteration with epoch dilation and wraparound
// - Grayscale and RGB loading with bilinear resize and scaling
// - Pluggable augmenters and normalizers gated by sequence role
// - Multibinary targets with one output vector per class
// - Inverse-propensity class weights with optional balancing
//
// # Quick Start
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/spf13/afero"
//
//	    "github.com/YuminosukeSato/medimg/config"
//	    "github.com/YuminosukeSato/medimg/dataset"
//	    "github.com/YuminosukeSato/medimg/generator"
//	    "github.com/YuminosukeSato/medimg/imageio"
//	    "github.com/YuminosukeSato/medimg/preprocessing"
//	)
//
//	func main() {
//	    fs := afero.NewOsFs()
//	    cfg, err := config.Load(fs, "config.yaml")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    enc, _ := dataset.NewEncoder(cfg.Dataset.ClassNames)
//	    index, err := dataset.LoadCSV(fs, cfg.Dataset.DataEntryFile, enc)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    norm, _ := preprocessing.NewNormalizer(cfg.Image.Normalize)
//	    pipeline := generator.NewPipeline(imageio.NewLoader(fs, cfg.Image), nil)
//	    assembler := generator.NewAssembler(pipeline, generator.WithNormalizer(norm))
//
//	    seq, err := generator.NewSequence(index, assembler, imageio.ModeTrain,
//	        generator.WithDilation(cfg.Dataset.Dilation))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for i := 0; i < seq.Len(); i++ {
//	        batch, err := seq.Get(i)
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        _ = batch.Inputs  // [N, H, W, C]
//	        _ = batch.Targets // [N, classes] or one vector per class
//	    }
//	}
//
// # Packages
//
//   - config: YAML configuration with defaults and validation
//   - dataset: Dataset index, label encoding, CSV loading, patient split
//   - imageio: Single image loading, resize and scale
//   - generator: Transform pipeline, batch assembler and batch sequence
//   - preprocessing: Normalizers and the random augmenter
//   - classweight: Class weight computation and JSON persistence
//   - report: Label distribution and class weight charts
//   - core/tensor: Dense image tensors
//   - core/model: Transformer capability interfaces
//   - core/parallel: Parallel processing utilities
//   - pkg/errors, pkg/log: Typed errors and structured logging
package medimg
