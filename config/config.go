package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Host string
	Port int

	OrtLibPath     string
	ImageModelPath string
	ImageLabels    []string
	TextModelPath  string
	TokenizerPath  string
	TextFakeIndex  int
	TextPadID      int
	TextNormalize  bool
	MaxTextLength  int

	PoolSize     int // Sessions per model
	VideoWorkers int // Concurrent frame classifications per video

	UploadDir        string
	MaxImageUploadMB int
	MaxVideoUploadMB int
	DegradeOnError   bool
	FeedbackDB       string // Empty when FEEDBACK_DB=off
	LogDirectory     string
	Debug            bool
}

func Load() *Config {
	poolSize := getEnvAsInt("POOL_SIZE", 4)

	feedbackDB := getEnv("FEEDBACK_DB", filepath.Join(".", "data", "feedback.db"))
	if strings.EqualFold(feedbackDB, "off") {
		feedbackDB = ""
	}

	return &Config{
		Host:             getEnv("HOST", "0.0.0.0"),
		Port:             getEnvAsInt("PORT", 8000),
		OrtLibPath:       getEnv("ORT_LIB_PATH", filepath.Join(".", "lib")),
		ImageModelPath:   getEnv("IMAGE_MODEL_PATH", filepath.Join(".", "models", "image", "model.onnx")),
		ImageLabels:      getEnvAsList("IMAGE_LABELS", []string{"artificial", "human"}),
		TextModelPath:    getEnv("TEXT_MODEL_PATH", filepath.Join(".", "models", "text", "model.onnx")),
		TokenizerPath:    getEnv("TOKENIZER_PATH", filepath.Join(".", "models", "text", "tokenizer.json")),
		TextFakeIndex:    getEnvAsInt("TEXT_FAKE_INDEX", 1),
		TextPadID:        getEnvAsInt("TEXT_PAD_ID", 1),
		TextNormalize:    getEnvAsBool("TEXT_NORMALIZE", false),
		MaxTextLength:    getEnvAsInt("MAX_TEXT_LENGTH", 100000),
		PoolSize:         poolSize,
		VideoWorkers:     getEnvAsInt("VIDEO_WORKERS", poolSize),
		UploadDir:        getEnv("UPLOAD_DIR", filepath.Join(".", "uploads")),
		MaxImageUploadMB: getEnvAsInt("MAX_IMAGE_UPLOAD_MB", 20),
		MaxVideoUploadMB: getEnvAsInt("MAX_VIDEO_UPLOAD_MB", 500),
		DegradeOnError:   getEnvAsBool("DEGRADE_ON_ERROR", true),
		FeedbackDB:       feedbackDB,
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),
		Debug:            getEnvAsBool("DEBUG", false),
	}
}

func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
