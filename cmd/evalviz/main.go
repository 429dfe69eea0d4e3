// Command evalviz renders detections and ground truth side by side onto a
// grid image for visual inspection of evaluation inputs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-eval/coco"
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/records"
	"github.com/nvr-ai/go-eval/util"
)

var (
	gtColor  = color.RGBA{G: 220, A: 255}
	detColor = color.RGBA{R: 220, A: 255}
)

func main() {
	var (
		gtPath   = flag.String("gt", "", "COCO-format ground truth annotation file (required)")
		detsPath = flag.String("dets", "", "detection results JSON file (required)")
		imageDir = flag.String("images", "", "image directory (required)")
		outPath  = flag.String("out", "evalviz.png", "output grid image")
		cols     = flag.Int("cols", 4, "grid columns")
		maxCells = flag.Int("n", 8, "maximum images to render")
		cellSize = flag.Int("cell", 480, "grid cell size in pixels")
	)
	flag.Parse()

	log := logrus.StandardLogger()
	if *gtPath == "" || *detsPath == "" || *imageDir == "" {
		log.Fatal("-gt, -dets, and -images are required")
	}

	gt, err := coco.LoadGroundTruth(*gtPath)
	if err != nil {
		log.Fatal(err)
	}
	data, err := os.ReadFile(*detsPath)
	if err != nil {
		log.Fatal(err)
	}
	var recs []records.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		log.Fatal(err)
	}
	dets := make(map[int][]records.Record)
	for _, rec := range recs {
		dets[rec.ImageID] = append(dets[rec.ImageID], rec)
	}

	files, err := util.LoadDirectoryImageFiles(*imageDir)
	if err != nil {
		log.Fatal(err)
	}
	if len(files) > *maxCells {
		files = files[:*maxCells]
	}

	var cells []image.Image
	for _, file := range files {
		annotated, err := annotate(file.Path, gt.ImageAnnotations(file.ID), dets[file.ID])
		if err != nil {
			log.WithError(err).Warnf("skipping %s", file.Path)
			continue
		}
		cells = append(cells, annotated)
	}
	if len(cells) == 0 {
		log.Fatal("no images could be rendered")
	}

	rows := (len(cells) + *cols - 1) / *cols
	grid, err := images.ComposeGrid(cells, rows, *cols, *cellSize, *cellSize)
	if err != nil {
		log.Fatal(err)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()
	if err := png.Encode(out, grid); err != nil {
		log.Fatal(err)
	}
	log.WithField("path", *outPath).Infof("rendered %d images", len(cells))
}

// annotate draws ground truth in green and detections in red on one image.
func annotate(path string, gts []*coco.Annotation, dets []records.Record) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, os.ErrInvalid
	}
	defer mat.Close()

	for _, ann := range gts {
		rect := image.Rect(
			int(ann.Bbox[0]), int(ann.Bbox[1]),
			int(ann.Bbox[0]+ann.Bbox[2]), int(ann.Bbox[1]+ann.Bbox[3]),
		)
		gocv.Rectangle(&mat, rect, gtColor, 2)
	}
	for _, det := range dets {
		if len(det.Bbox) != 4 {
			continue
		}
		rect := image.Rect(
			int(det.Bbox[0]), int(det.Bbox[1]),
			int(det.Bbox[0]+det.Bbox[2]), int(det.Bbox[1]+det.Bbox[3]),
		)
		gocv.Rectangle(&mat, rect, detColor, 2)
		label := fmt.Sprintf("%.2f", det.Score)
		gocv.PutText(&mat, label, rect.Min, gocv.FontHersheyPlain, 1.2, detColor, 1)
	}

	return mat.ToImage()
}
