package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

const statsFileName = "stats.yaml"

// getResultFolder returns <results>/<date range>/<data file name>. The range segment is
// "all" for an open bound.
func getResultFolder(resultsFolder string, dataPath string, config BacktestEngineV1Config) string {
	startStr := "all"
	endStr := "all"

	if config.StartDate.IsSome() {
		startStr = config.StartDate.Unwrap().Format("20060102")
	}

	if config.EndDate.IsSome() {
		endStr = config.EndDate.Unwrap().Format("20060102")
	}

	folder := filepath.Join(resultsFolder, fmt.Sprintf("%s_%s", startStr, endStr))

	if dataPath == "" {
		return folder
	}

	dataFileName := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))

	return filepath.Join(folder, dataFileName)
}

func statsPath(folder string) string {
	return filepath.Join(folder, statsFileName)
}
