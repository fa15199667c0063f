package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/prashants/objdiff"
)

var (
	configPath string
	oldLabels  string
	newLabels  string
	logFile    string
	verbose    bool
)

func main() {
	flag.StringVar(&configPath, "config", "", "YAML file overriding section naming conventions")
	flag.StringVar(&oldLabels, "old-labels", "", "label file for the old object")
	flag.StringVar(&newLabels, "new-labels", "", "label file for the new object")
	flag.StringVar(&logFile, "log-file", "", "also write logs to this file")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] old.o new.o\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := objdiff.NewLogger(objdiff.LogConfig{Debug: verbose, File: logFile})
	defer log.Sync()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	oldPath, newPath := flag.Arg(0), flag.Arg(1)

	cfg := objdiff.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = objdiff.LoadConfig(configPath)
		if err != nil {
			log.Fatal("load config", zap.Error(err))
		}
	}

	oldObj, err := openObject(oldPath, oldLabels)
	if err != nil {
		log.Fatal("open old object", zap.Error(err))
	}
	defer oldObj.Close()
	newObj, err := openObject(newPath, newLabels)
	if err != nil {
		log.Fatal("open new object", zap.Error(err))
	}
	defer newObj.Close()

	log.Debug("comparing", zap.String("old", oldPath), zap.String("new", newPath))
	report, err := objdiff.Diff(oldObj, newObj, cfg, log)
	if err != nil {
		log.Fatal("diff", zap.Error(err))
	}

	// Render fully before printing so a failure never leaves partial output.
	var out bytes.Buffer
	if _, err := report.WriteTo(&out); err != nil {
		log.Fatal("render report", zap.Error(err))
	}
	if _, err := os.Stdout.Write(out.Bytes()); err != nil {
		log.Fatal("write report", zap.Error(err))
	}
}

func openObject(path, labelPath string) (*objdiff.ElfObject, error) {
	var labels objdiff.Labels
	if labelPath != "" {
		var err error
		labels, err = objdiff.ReadLabels(labelPath)
		if err != nil {
			return nil, err
		}
	}
	return objdiff.OpenElf(path, labels)
}
