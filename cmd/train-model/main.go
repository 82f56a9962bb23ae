package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/parser06/first-responder-risk/internal/classifier"
	"github.com/parser06/first-responder-risk/internal/models"
	logpkg "github.com/parser06/first-responder-risk/pkg/logger"
)

// trainingLine 训练集 JSONL 单行: 特征向量加分级标签
type trainingLine struct {
	Features models.FeatureVector `json:"features"`
	Label    string               `json:"label"`
}

func main() {
	inputPath := flag.String("input", "", "training set JSONL file, one {\"features\":{...},\"label\":\"...\"} per line")
	outputPath := flag.String("output", "./models/risk_model.json", "trained model output path")
	anomalyThreshold := flag.Float64("anomaly-threshold", -0.1, "isolation forest anomaly decision threshold")
	flag.Parse()

	if *inputPath == "" {
		log.Fatalf("Usage: %s -input training.jsonl [-output model.json]", os.Args[0])
	}

	records, labels, err := loadTrainingSet(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load training set: %v", err)
	}
	fmt.Printf("Loaded %d training records from %s\n", len(records), *inputPath)

	logger, err := logpkg.NewLogger("info", "console", "train-model")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	riskClassifier := classifier.NewRiskClassifier(*anomalyThreshold, logger)

	report, err := riskClassifier.Train(records, labels)
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	if err := riskClassifier.Save(*outputPath); err != nil {
		log.Fatalf("Failed to save model: %v", err)
	}

	printReport(report, *outputPath)
}

// loadTrainingSet 逐行读取 JSONL, 空行跳过, 坏行报行号
func loadTrainingSet(path string) ([]models.FeatureVector, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open training set: %w", err)
	}
	defer f.Close()

	var records []models.FeatureVector
	var labels []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var tl trainingLine
		if err := json.Unmarshal([]byte(line), &tl); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if tl.Label == "" {
			return nil, nil, fmt.Errorf("line %d: missing label", lineNo)
		}

		records = append(records, tl.Features)
		labels = append(labels, tl.Label)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read training set: %w", err)
	}

	return records, labels, nil
}

func printReport(report *models.TrainingReport, outputPath string) {
	fmt.Printf("\nTraining completed\n")
	fmt.Printf("  Model version:  %s\n", report.ModelVersion)
	fmt.Printf("  Train accuracy: %.4f (%d samples)\n", report.TrainAccuracy, report.TrainSamples)
	fmt.Printf("  Test accuracy:  %.4f (%d samples)\n", report.TestAccuracy, report.TestSamples)

	fmt.Printf("  Class counts:\n")
	classes := make([]string, 0, len(report.ClassCounts))
	for class := range report.ClassCounts {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Printf("    %-10s %d\n", class, report.ClassCounts[class])
	}

	fmt.Printf("  Top feature importances:\n")
	type importance struct {
		name  string
		value float64
	}
	importances := make([]importance, 0, len(report.FeatureImportances))
	for name, value := range report.FeatureImportances {
		importances = append(importances, importance{name, value})
	}
	sort.Slice(importances, func(i, j int) bool {
		if importances[i].value != importances[j].value {
			return importances[i].value > importances[j].value
		}
		return importances[i].name < importances[j].name
	})
	for i, imp := range importances {
		if i >= 5 {
			break
		}
		fmt.Printf("    %-22s %.4f\n", imp.name, imp.value)
	}

	fmt.Printf("\nModel saved to %s\n", outputPath)
}
