package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"

	"github.com/phishguard/risk-engine/internal/domain"
	"github.com/phishguard/risk-engine/internal/ml"
)

func main() {
	modelType := flag.String("model", "url", "model to train: url or email")
	dataset := flag.String("dataset", "", "path to the training CSV")
	modelsDir := flag.String("models-dir", "models", "directory for model artifacts")
	flag.Parse()

	printBanner()

	if *dataset == "" {
		color.Red("a -dataset CSV is required")
		flag.Usage()
		os.Exit(2)
	}

	var report domain.TrainReport
	var err error
	switch *modelType {
	case "url":
		report, err = ml.NewURLClassifier(*modelsDir).Train(*dataset)
	case "email":
		report, err = ml.NewEmailClassifier(*modelsDir).Train(*dataset)
	default:
		color.Red("unknown model type %q (want url or email)", *modelType)
		os.Exit(2)
	}
	if err != nil {
		color.Red("training failed: %v", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	_, _ = green.Printf("✔ %s model trained\n", *modelType)
	_, _ = cyan.Printf("  version:          %s\n", report.Version)
	_, _ = cyan.Printf("  accuracy:         %.2f%%\n", report.Accuracy*100)
	_, _ = cyan.Printf("  training samples: %d\n", report.TrainingSamples)
	_, _ = cyan.Printf("  test samples:     %d\n", report.TestSamples)
	fmt.Printf("artifacts written under %s\n", *modelsDir)
}

func printBanner() {
	figure.NewColorFigure("PHISHTRAIN", "doom", "cyan", true).Print()
	_, _ = color.New(color.FgCyan).Println("  phishing model training utility")
}
