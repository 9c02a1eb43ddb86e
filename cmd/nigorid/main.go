package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	nigori "github.com/asweigart123/nigori"
	"github.com/asweigart123/nigori/internal/server"
)

type serverConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	DataDir            string `yaml:"dataDir"`
	MinimumFreeGB      int    `yaml:"minimumFreeGB"`
	SyncWrites         bool   `yaml:"syncWrites"`
	NonceTTLSeconds    int    `yaml:"nonceTTLSeconds"`
	PurgeIntervalSecs  int    `yaml:"noncePurgeIntervalSeconds"`
	FreshnessWindowSec int    `yaml:"freshnessWindowSeconds"`
	LogLevel           string `yaml:"logLevel"`
}

func loadConfig(path string) (serverConfig, error) {
	var config serverConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing config: %w", err)
	}

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 8888
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml configuration file")
	flag.Parse()

	log := logrus.New()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", config.LogLevel, err)
	}
	log.SetLevel(level)

	db, err := nigori.Open(nigori.Config{
		DataDir:            config.DataDir,
		MinimumFreeGB:      config.MinimumFreeGB,
		SyncWrites:         config.SyncWrites,
		NonceTTL:           time.Duration(config.NonceTTLSeconds) * time.Second,
		NoncePurgeInterval: time.Duration(config.PurgeIntervalSecs) * time.Second,
		Logger:             log,
	})
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: server.New(db, server.WithLogger(log)),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-done
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
