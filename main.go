package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"mindserve/classify"
	"mindserve/db"
	qhttp "mindserve/http"
	"mindserve/labels"
	"mindserve/logging"
)

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		MaxBodyMB      int      `yaml:"max_body_mb"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Model struct {
		TextPath   string `yaml:"text_path"`
		ForestPath string `yaml:"forest_path"`
		CacheSize  int    `yaml:"cache_size"`
	} `yaml:"model"`
	Labels struct {
		Path string `yaml:"path"`
	} `yaml:"labels"`
	Log logging.Config `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(config.Log)
	defer logger.Sync()

	// 2. Initialize the history store
	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatal("failed to initialize history store",
			zap.String("path", config.Database.Path),
			zap.Error(err))
	}
	defer db.Close()
	logger.Info("history store initialized", zap.String("path", config.Database.Path))

	// 3. Load the model and the label table. Both are fatal when broken:
	// that is misconfiguration, not a transient failure, so no retry.
	gateway, err := classify.New(classify.Config{
		TextPath:   config.Model.TextPath,
		ForestPath: config.Model.ForestPath,
		CacheSize:  config.Model.CacheSize,
	}, logger)
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}

	mapper, err := labels.NewMapper(config.Labels.Path, logger)
	if err != nil {
		logger.Fatal("failed to load label table", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := mapper.Watch(ctx); err != nil {
			logger.Warn("label table watcher stopped", zap.Error(err))
		}
	}()

	qhttp.SetClassifier(gateway)
	qhttp.SetLabelMapper(mapper)

	// 4. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.MaxBodyMB != 0 {
		serverConfig.MaxBodyBytes = int64(config.Http.MaxBodyMB) << 20
	}
	if len(config.Http.AllowedOrigins) != 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := qhttp.NewServer(serverConfig, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
