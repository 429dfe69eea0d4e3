// Command go-eval scores detection results against COCO-format ground truth
// and prints mAP-style summaries. Predictions come either from a results
// JSON file in the flat record schema, or from running an ONNX detector over
// a directory of images.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-eval/coco"
	"github.com/nvr-ai/go-eval/distributed"
	"github.com/nvr-ai/go-eval/evaluation"
	"github.com/nvr-ai/go-eval/inference"
	"github.com/nvr-ai/go-eval/records"
	"github.com/nvr-ai/go-eval/scorer/cocoscorer"
	"github.com/nvr-ai/go-eval/util"
)

func main() {
	var (
		gtPath    = flag.String("gt", "", "COCO-format ground truth annotation file (required)")
		detsPath  = flag.String("dets", "", "detection results JSON file (flat record schema)")
		modelPath = flag.String("model", "", "ONNX detection model to run instead of -dets")
		imageDir  = flag.String("images", "", "image directory for -model mode")
		kindsFlag = flag.String("kinds", "bbox", "comma-separated metric kinds: bbox,segm,keypoints")
		batchSize = flag.Int("batch", 8, "images per evaluation batch")
		inputSize = flag.Int("input-size", 640, "model input resolution for -model mode")
		confThr   = flag.Float64("conf", 0.25, "confidence threshold for -model mode")
		verbose   = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *gtPath == "" {
		log.Fatal("-gt is required")
	}
	if (*detsPath == "") == (*modelPath == "") {
		log.Fatal("exactly one of -dets or -model is required")
	}

	var kinds []records.Kind
	for _, name := range strings.Split(*kindsFlag, ",") {
		kind, err := records.ParseKind(strings.TrimSpace(name))
		if err != nil {
			log.Fatal(err)
		}
		kinds = append(kinds, kind)
	}

	gt, err := coco.LoadGroundTruth(*gtPath)
	if err != nil {
		log.Fatal(err)
	}

	eval, err := evaluation.New(evaluation.Config{
		Kinds:       kinds,
		GroundTruth: gt,
		NewScorer:   cocoscorer.Factory,
		Logger:      log,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.WithField("run_id", eval.RunID()).Info("starting evaluation")

	if *detsPath != "" {
		err = evaluateResultsFile(eval, kinds, *detsPath, *batchSize)
	} else {
		err = evaluateModel(eval, *modelPath, *imageDir, *inputSize, float32(*confThr), *batchSize)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Single worker: the merge is a no-op pass through the same code path.
	if err := eval.MergeWorkers(context.Background(), distributed.Single()); err != nil {
		log.Fatal(err)
	}
	if err := eval.Summarize(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// evaluateResultsFile loads flat records, regroups them per image, and feeds
// them through the evaluator in batches.
func evaluateResultsFile(eval *evaluation.Evaluator, kinds []records.Kind, path string, batchSize int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read results file: %w", err)
	}
	var recs []records.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("failed to parse results file: %w", err)
	}

	// Every configured kind's field must be present on every record, or the
	// file cannot serve this run.
	preds, err := records.GroupByImage(recs, kinds...)
	if err != nil {
		return fmt.Errorf("results file cannot serve -kinds: %w", err)
	}
	ids := records.ImageIDs(preds)

	bar := progressbar.Default(int64(len(ids)), "evaluating")
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		batch := make(map[int]records.Instances, end-start)
		for _, id := range ids[start:end] {
			batch[id] = preds[id]
		}
		if err := eval.Process(batch); err != nil {
			return err
		}
		bar.Add(end - start)
	}
	return bar.Finish()
}

// evaluateModel runs the ONNX detector over every image in the directory and
// evaluates its predictions.
func evaluateModel(eval *evaluation.Evaluator, modelPath, imageDir string, inputSize int, confThr float32, batchSize int) error {
	if imageDir == "" {
		return fmt.Errorf("-images is required with -model")
	}
	files, err := util.LoadDirectoryImageFiles(imageDir)
	if err != nil {
		return err
	}
	detector, err := inference.NewDetector(inference.Config{
		ModelPath:           modelPath,
		InputWidth:          inputSize,
		InputHeight:         inputSize,
		ConfidenceThreshold: confThr,
	})
	if err != nil {
		return err
	}
	defer detector.Close()

	bar := progressbar.Default(int64(len(files)), "detecting")
	batch := make(map[int]records.Instances, batchSize)
	for _, file := range files {
		img, err := util.OpenImage(file.Path)
		if err != nil {
			return err
		}
		instances, err := detector.Detect(img)
		if err != nil {
			return fmt.Errorf("detection failed on %s: %w", file.Path, err)
		}
		batch[file.ID] = instances
		bar.Add(1)
		if len(batch) >= batchSize {
			if err := eval.Process(batch); err != nil {
				return err
			}
			batch = make(map[int]records.Instances, batchSize)
		}
	}
	if len(batch) > 0 {
		if err := eval.Process(batch); err != nil {
			return err
		}
	}
	return bar.Finish()
}
