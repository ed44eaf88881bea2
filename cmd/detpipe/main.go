package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/edgecv/go-detpipe/input"
	"github.com/edgecv/go-detpipe/model"
	"github.com/edgecv/go-detpipe/output"
	"github.com/edgecv/go-detpipe/task"
	"github.com/sirupsen/logrus"
)

func main() {

	modelFlag := flag.String("model", "", "Model locator, eg yolo:///data/yolov8n.onnx")
	inputFlag := flag.String("input", "", "Input locator, eg video:///data/clip.mp4")
	outputFlag := flag.String("output", "", "Output locator, eg image:///data/out.jpg")
	confidence := flag.Float64("confidence", 0.5, "Confidence threshold (0,1]")
	nmsThreshold := flag.Float64("nms-threshold", 0.45, "NMS IoU threshold (0,1]")
	maxFrames := flag.Uint64("max-frames", 0, "Maximum frames to process, 0 for unlimited")
	taskFlag := flag.String("task", "continuous", "Execution policy: once, repeat or continuous")
	repeat := flag.Int("repeat", 0, "Benchmark iteration count for the repeat task, 0 for the default")
	verbose := flag.Bool("verbose", false, "Enable per frame debug logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *modelFlag == "" || *inputFlag == "" || *outputFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*modelFlag, *inputFlag, *outputFlag, *confidence,
		*nmsThreshold, *maxFrames, *taskFlag, *repeat); err != nil {
		logrus.Fatal(err)
	}
}

func run(modelLoc, inputLoc, outputLoc string, confidence, nmsThreshold float64,
	maxFrames uint64, taskMode string, repeat int) error {

	cfg := model.Config{
		BoxThreshold: float32(confidence),
		NMSThreshold: float32(nmsThreshold),
	}

	models := model.NewRegistry(cfg)

	logrus.WithFields(logrus.Fields{
		"model":      modelLoc,
		"input":      inputLoc,
		"output":     outputLoc,
		"confidence": confidence,
		"nms":        nmsThreshold,
	}).Info("starting detection pipeline")

	mdl, err := models.Open(modelLoc)

	if err != nil {
		return fmt.Errorf("error opening model (available schemes: %s): %w",
			strings.Join(models.Schemes(), ", "), err)
	}

	defer mdl.Close()

	src, err := input.Open(inputLoc)

	if err != nil {
		return fmt.Errorf("error opening input (available schemes: %s): %w",
			strings.Join(input.Schemes(), ", "), err)
	}

	sink, err := output.Open(outputLoc)

	if err != nil {
		src.Close()
		return fmt.Errorf("error opening output (available schemes: %s): %w",
			strings.Join(output.Schemes(), ", "), err)
	}

	runner := &task.Runner{
		Source:    src,
		Model:     mdl,
		Sink:      sink,
		MaxFrames: maxFrames,
	}

	var report task.Report

	switch taskMode {
	case "once":
		report, err = runner.RunOnce()
	case "repeat":
		report, err = runner.RunRepeat(repeat)
	case "continuous":
		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()
		report, err = runner.RunContinuous(ctx)
	default:
		return fmt.Errorf("unknown task %q, expected once, repeat or continuous", taskMode)
	}

	logrus.WithFields(logrus.Fields{
		"state":      report.State,
		"frames":     report.Frames,
		"detections": report.Detections,
	}).Info("pipeline finished")

	if report.AvgInference > 0 {
		logrus.WithField("avg_inference", report.AvgInference).
			Info("inference timing")
	}

	return err
}
