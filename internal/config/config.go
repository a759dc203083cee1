package config

import (
	"os"
	"strconv"
)

type Config struct {
	DataDir      string
	BlobDir      string
	DeviceName   string
	DeviceSecret string
	// Object storage - blobs stay on the local filesystem unless configured
	BlobStoreKind string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3UseSSL      bool
	Debug         bool
}

func Load() Config {
	return Config{
		DataDir:       getenv("MEERKAT_DATA_DIR", "./data/dens"),
		BlobDir:       getenv("MEERKAT_BLOB_DIR", "./data/blobs"),
		DeviceName:    getenv("MEERKAT_DEVICE_NAME", "meerkat-device"),
		DeviceSecret:  getenv("MEERKAT_DEVICE_SECRET", ""),
		BlobStoreKind: getenv("MEERKAT_BLOB_STORE", "fs"),
		S3Endpoint:    getenv("MEERKAT_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:   getenv("MEERKAT_S3_ACCESS_KEY", ""),
		S3SecretKey:   getenv("MEERKAT_S3_SECRET_KEY", ""),
		S3Bucket:      getenv("MEERKAT_S3_BUCKET", "meerkat-blobs"),
		S3UseSSL:      getenvBool("MEERKAT_S3_USE_SSL", false),
		Debug:         getenvBool("MEERKAT_DEBUG", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
